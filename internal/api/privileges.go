package api

import "net/http"

// privilege is one entry of a privilege enum: Value is the identifier,
// Label the display text. Users may be stored with either.
type privilege struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var customerPrivileges = []privilege{
	{Value: "Admin", Label: "Admin"},
	{Value: "Manager", Label: "Manager"},
	{Value: "Engineer", Label: "Engineer"},
	{Value: "Lab_Incharge", Label: "Lab Incharge"},
}

var managementPrivileges = []privilege{
	{Value: "Admin", Label: "Admin"},
	{Value: "Top_Manager", Label: "Top Manager"},
	{Value: "Manager_Production", Label: "Manager-Production"},
	{Value: "Manager_Service", Label: "Manager-Service"},
}

func validPrivilege(privileges []privilege, p string) bool {
	for _, v := range privileges {
		if p == v.Value || p == v.Label {
			return true
		}
	}
	return false
}

func (s *Server) handlePrivileges(privileges []privilege) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, privileges)
	}
}
