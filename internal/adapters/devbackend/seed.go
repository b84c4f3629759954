package devbackend

import (
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
)

// DefaultUsers returns one account per role, all sharing password.
func DefaultUsers(password string) []SeedUser {
	return []SeedUser{
		{
			Password: password,
			User: domainauth.User{
				ID: "1", Username: "superadmin", Email: "superadmin@hrportal.local", Role: domainauth.RoleSuperAdmin,
				Profile: domainauth.Profile{FirstName: "Sofia", LastName: "Reyes", Position: "HR Director", Division: "People"},
			},
		},
		{
			Password: password,
			User: domainauth.User{
				ID: "2", Username: "admin", Email: "admin@hrportal.local", Role: domainauth.RoleAdmin,
				Profile: domainauth.Profile{FirstName: "Amir", LastName: "Haddad", Position: "HR Partner", Division: "People"},
			},
		},
		{
			Password: password,
			User: domainauth.User{
				ID: "3", Username: "employee", Email: "employee@hrportal.local", Role: domainauth.RoleEmployee,
				Profile: domainauth.Profile{FirstName: "Lena", LastName: "Park", Position: "Engineer", Division: "Platform"},
			},
		},
	}
}

// DefaultApplications returns the application directory served by default.
func DefaultApplications(narukuURL string) []sso.Application {
	if narukuURL == "" {
		narukuURL = "http://localhost:5173/sso"
	}
	return []sso.Application{
		{
			ID:           domainauth.ApplicationNaruku,
			Name:         "Naruku",
			Description:  "Time tracking and leave requests",
			URL:          narukuURL,
			RequiresAuth: true,
		},
	}
}
