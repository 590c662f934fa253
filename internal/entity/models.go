package entity

// Organization is the shared shape of customers and management companies.
type Organization struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	GST        string `json:"gst"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
	Address    string `json:"address"`
	KeyName    string `json:"key_name"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// Customer owns serial numbers and customer users.
type Customer struct {
	Organization
}

// Management is a machine maker. It owns machine models and management users.
type Management struct {
	Organization
}

// User is the shared shape of customer and management users. Password holds
// a bcrypt hash and is never encoded.
type User struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Password    string `json:"-"`
	Designation string `json:"designation"`
	Privilege   string `json:"privilege"`
}

type CustomerUser struct {
	User
	CustomerID int64 `json:"customer_id"`
}

type ManagementUser struct {
	User
	ManagementID int64 `json:"management_id"`
}

// MachineModel is a product line. Make references the management company
// building it.
type MachineModel struct {
	ID                    int64  `json:"id"`
	MachineName           string `json:"machineName"`
	ModelNumber           string `json:"model_number"`
	Description           string `json:"description"`
	DefaultWarrantyMonths int    `json:"default_warranty_months"`
	Phase                 string `json:"phase"`
	Volts                 string `json:"volts"`
	Amps                  string `json:"amps"`
	Frequency             string `json:"frequency"`
	Image                 string `json:"image"`
	SWVersion             string `json:"sw_version"`
	PCBVersion            string `json:"pcb_version"`
	FWVersion             string `json:"fw_version"`
	DesignVersion         string `json:"design_version"`
	Make                  int64  `json:"make"`
}

// SerialNumber is one shipped unit. ModelNumber references the machine
// model id.
type SerialNumber struct {
	ID                       int64  `json:"id"`
	SerialNumber             string `json:"serial_number"`
	DateOfManufacturing      string `json:"date_of_manufacturing"`
	AdditionalWarrantyMonths string `json:"additional_warranty_months"`
	WarrantyEndDate          string `json:"warranty_end_date"`
	ProductWarranty          string `json:"product_warranty"`
	SWVersion                string `json:"sw_version"`
	PCBVersion               string `json:"pcb_version"`
	FWVersion                string `json:"fw_version"`
	DesignVersion            string `json:"design_version"`
	ModelNumber              int64  `json:"model_number"`
	CustomerID               int64  `json:"customer_id"`
}

type SerialRef struct {
	ID           int64  `json:"id"`
	SerialNumber string `json:"serial_number"`
}

// MachineWithSerials is a machine model together with its shipped units.
type MachineWithSerials struct {
	MachineModel
	SerialNumbers []SerialRef `json:"serial_numbers"`
}
