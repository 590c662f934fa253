package entity

import "fmt"

// ref is a foreign key: column holds the id of a row in table. Deleting the
// referenced row deletes the referencing one.
type ref struct {
	column string
	table  string
}

// schema maps a Go type onto a table. fields returns pointers to the struct
// fields in columns order; the id column is handled separately.
type schema[T any] struct {
	table   string
	columns []string
	unique  []string
	refs    []ref
	id      func(*T) *int64
	fields  func(*T) []any
}

func (s schema[T]) columnIndex(column string) (int, error) {
	for i, c := range s.columns {
		if c == column {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s has no column %q", s.table, column)
}

func orgFields(o *Organization) []any {
	return []any{&o.Name, &o.Phone, &o.Email, &o.GST, &o.Latitude, &o.Longitude, &o.Address, &o.KeyName, &o.PrivateKey, &o.PublicKey}
}

var orgColumns = []string{"name", "phone", "email", "gst", "latitude", "longitude", "address", "key_name", "private_key", "public_key"}

var userColumns = []string{"name", "username", "password", "designation", "privilege"}

func userFields(u *User) []any {
	return []any{&u.Name, &u.Username, &u.Password, &u.Designation, &u.Privilege}
}

var customerSchema = schema[Customer]{
	table:   "customers",
	columns: orgColumns,
	id:      func(c *Customer) *int64 { return &c.ID },
	fields:  func(c *Customer) []any { return orgFields(&c.Organization) },
}

var managementSchema = schema[Management]{
	table:   "management",
	columns: orgColumns,
	id:      func(m *Management) *int64 { return &m.ID },
	fields:  func(m *Management) []any { return orgFields(&m.Organization) },
}

var customerUserSchema = schema[CustomerUser]{
	table:   "customer_user_model",
	columns: append(append([]string{}, userColumns...), "customer_id"),
	unique:  []string{"username"},
	refs:    []ref{{column: "customer_id", table: "customers"}},
	id:      func(u *CustomerUser) *int64 { return &u.ID },
	fields: func(u *CustomerUser) []any {
		return append(userFields(&u.User), &u.CustomerID)
	},
}

var managementUserSchema = schema[ManagementUser]{
	table:   "management_user_model",
	columns: append(append([]string{}, userColumns...), "management_id"),
	unique:  []string{"username"},
	refs:    []ref{{column: "management_id", table: "management"}},
	id:      func(u *ManagementUser) *int64 { return &u.ID },
	fields: func(u *ManagementUser) []any {
		return append(userFields(&u.User), &u.ManagementID)
	},
}

var machineSchema = schema[MachineModel]{
	table: "machine_model",
	columns: []string{
		"machine_name", "model_number", "description", "default_warranty_months",
		"phase", "volts", "amps", "frequency", "image",
		"sw_version", "pcb_version", "fw_version", "design_version", "make",
	},
	unique: []string{"model_number"},
	refs:   []ref{{column: "make", table: "management"}},
	id:     func(m *MachineModel) *int64 { return &m.ID },
	fields: func(m *MachineModel) []any {
		return []any{
			&m.MachineName, &m.ModelNumber, &m.Description, &m.DefaultWarrantyMonths,
			&m.Phase, &m.Volts, &m.Amps, &m.Frequency, &m.Image,
			&m.SWVersion, &m.PCBVersion, &m.FWVersion, &m.DesignVersion, &m.Make,
		}
	},
}

var serialSchema = schema[SerialNumber]{
	table: "serial_numbers",
	columns: []string{
		"serial_number", "date_of_manufacturing", "additional_warranty_months",
		"warranty_end_date", "product_warranty",
		"sw_version", "pcb_version", "fw_version", "design_version",
		"model_number", "customer_id",
	},
	unique: []string{"serial_number"},
	refs: []ref{
		{column: "model_number", table: "machine_model"},
		{column: "customer_id", table: "customers"},
	},
	id: func(s *SerialNumber) *int64 { return &s.ID },
	fields: func(s *SerialNumber) []any {
		return []any{
			&s.SerialNumber, &s.DateOfManufacturing, &s.AdditionalWarrantyMonths,
			&s.WarrantyEndDate, &s.ProductWarranty,
			&s.SWVersion, &s.PCBVersion, &s.FWVersion, &s.DesignVersion,
			&s.ModelNumber, &s.CustomerID,
		}
	},
}

// deref reads the value behind one of the field pointers returned by a
// schema.
func deref(p any) any {
	switch v := p.(type) {
	case *string:
		return *v
	case *int64:
		return *v
	case *int:
		return int64(*v)
	}
	panic(fmt.Sprintf("unsupported field type %T", p))
}

// normalize brings filter values onto the types deref returns.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return v
}
