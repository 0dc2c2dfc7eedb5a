package audit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gestionequipos/activos-api/internal/models"
)

// Entity type names used across change records.
const (
	EntitySite        = "SITE"
	EntityEquipment   = "EQUIPMENT"
	EntityPeripheral  = "PERIPHERAL"
	EntityEmployee    = "EMPLOYEE"
	EntityLicense     = "LICENSE"
	EntityMaintenance = "MAINTENANCE"
)

// SiteSnapshot captures the audited fields of a site. A site scopes
// itself, so the snapshot's SiteID is its own id.
func SiteSnapshot(s *models.Site) Snapshot {
	return Snapshot{
		EntityType: EntitySite,
		EntityID:   s.ID,
		Label:      s.Name,
		SiteID:     &s.ID,
		Fields: []Field{
			Scalar("name", "Nombre", s.Name),
			Scalar("address", "Direccion", strVal(s.Address)),
			Scalar("city", "Ciudad", strVal(s.City)),
			Scalar("active", "Activa", boolVal(s.Active)),
		},
	}
}

// EquipmentSnapshot captures the audited fields of a device.
func EquipmentSnapshot(e *models.Equipment) Snapshot {
	return Snapshot{
		EntityType: EntityEquipment,
		EntityID:   e.ID,
		Label:      fmt.Sprintf("%s (%s)", e.Name, e.Serial),
		SiteID:     e.SiteID,
		Fields: []Field{
			Scalar("serial", "Serial", e.Serial),
			Scalar("inventory_tag", "Placa de inventario", strVal(e.InventoryTag)),
			Scalar("name", "Nombre", e.Name),
			Scalar("brand", "Marca", strVal(e.Brand)),
			Scalar("model", "Modelo", strVal(e.Model)),
			Scalar("category", "Categoria", strVal(e.Category)),
			Scalar("state", "Estado tecnico", string(e.State)),
			Scalar("availability", "Disponibilidad", string(e.Availability)),
			Relation("site", "Sede", e.SiteID, strVal(e.SiteName)),
			Relation("assigned_employee", "Empleado asignado", e.AssignedEmployeeID, strVal(e.AssignedEmployee)),
			Scalar("purchase_date", "Fecha de compra", dateVal(e.PurchaseDate)),
			Scalar("warranty_until", "Garantia hasta", dateVal(e.WarrantyUntil)),
			Scalar("notes", "Observaciones", strVal(e.Notes)),
		},
	}
}

// PeripheralSnapshot captures the audited fields of a peripheral.
func PeripheralSnapshot(p *models.Peripheral) Snapshot {
	label := p.Name
	if p.Serial != nil {
		label = fmt.Sprintf("%s (%s)", p.Name, *p.Serial)
	}
	return Snapshot{
		EntityType: EntityPeripheral,
		EntityID:   p.ID,
		Label:      label,
		SiteID:     p.SiteID,
		Fields: []Field{
			Scalar("serial", "Serial", strVal(p.Serial)),
			Scalar("name", "Nombre", p.Name),
			Scalar("type", "Tipo", string(p.Type)),
			Scalar("brand", "Marca", strVal(p.Brand)),
			Scalar("state", "Estado tecnico", string(p.State)),
			Relation("equipment", "Equipo asociado", p.EquipmentID, strVal(p.EquipmentLabel)),
			Relation("assigned_employee", "Empleado asignado", p.AssignedEmployeeID, strVal(p.AssignedEmployee)),
			Scalar("notes", "Observaciones", strVal(p.Notes)),
		},
	}
}

// EmployeeSnapshot captures the audited fields of a staff member.
func EmployeeSnapshot(e *models.Employee) Snapshot {
	return Snapshot{
		EntityType: EntityEmployee,
		EntityID:   e.ID,
		Label:      e.FullName,
		SiteID:     e.SiteID,
		Fields: []Field{
			Scalar("document", "Documento", e.Document),
			Scalar("full_name", "Nombre completo", e.FullName),
			Scalar("email", "Correo", strVal(e.Email)),
			Scalar("phone", "Telefono", strVal(e.Phone)),
			Scalar("position", "Cargo", strVal(e.Position)),
			Scalar("department", "Area", strVal(e.Department)),
			Scalar("active", "Activo", boolVal(e.Active)),
		},
	}
}

// LicenseSnapshot captures the audited fields of a software license.
func LicenseSnapshot(l *models.License) Snapshot {
	return Snapshot{
		EntityType: EntityLicense,
		EntityID:   l.ID,
		Label:      l.Software,
		SiteID:     l.SiteID,
		Fields: []Field{
			Scalar("software", "Software", l.Software),
			Scalar("license_key", "Clave", l.Key),
			Scalar("vendor", "Proveedor", strVal(l.Vendor)),
			Scalar("seats", "Puestos", strconv.Itoa(l.Seats)),
			Relation("equipment", "Equipo asociado", l.EquipmentID, strVal(l.EquipmentLabel)),
			Scalar("purchased_at", "Fecha de compra", dateVal(l.PurchasedAt)),
			Scalar("expires_at", "Vence", dateVal(l.ExpiresAt)),
			Scalar("notes", "Observaciones", strVal(l.Notes)),
		},
	}
}

// MaintenanceSnapshot captures the audited fields of a maintenance
// record.
func MaintenanceSnapshot(m *models.MaintenanceRecord) Snapshot {
	label := fmt.Sprintf("Mantenimiento %s", m.ID)
	if m.EquipmentLabel != nil {
		label = fmt.Sprintf("Mantenimiento de %s", *m.EquipmentLabel)
	}
	return Snapshot{
		EntityType: EntityMaintenance,
		EntityID:   m.ID,
		Label:      label,
		SiteID:     m.SiteID,
		Fields: []Field{
			Relation("equipment", "Equipo", &m.EquipmentID, strVal(m.EquipmentLabel)),
			Scalar("kind", "Tipo", string(m.Kind)),
			Scalar("state", "Estado", string(m.State)),
			Scalar("description", "Descripcion", m.Description),
			Scalar("technician", "Tecnico", strVal(m.Technician)),
			Scalar("scheduled_start", "Fecha de inicio", dateVal(&m.ScheduledStart)),
			Scalar("scheduled_end", "Fecha de finalizacion", dateVal(m.ScheduledEnd)),
			Scalar("actual_completion", "Finalizacion real", dateVal(m.ActualCompletion)),
			Scalar("cost", "Costo", moneyVal(m.Cost)),
			Scalar("notes", "Observaciones", strVal(m.Notes)),
		},
	}
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateVal(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayout)
}

func boolVal(b bool) string {
	if b {
		return "Si"
	}
	return "No"
}

func moneyVal(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
