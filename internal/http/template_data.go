package httpx

import (
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
)

// PageData is the model handed to every page template.
type PageData struct {
	Title     string
	CSRFToken string

	User         *domainauth.User
	Capabilities []domainauth.Capability
	Applications []sso.Application
	// DirectoryError is shown above the application list when it could not be refreshed.
	DirectoryError string

	// Sign-in page.
	Error           string
	Email           string
	RedirectURI     string
	PasswordEnabled bool
	RedirectEnabled bool

	// RefreshSeconds drives the meta refresh of the loading page.
	RefreshSeconds int
	// SignInPath is where the recovery and denied pages send the user.
	SignInPath string
}

// Can reports whether the page's user holds capability c.
func (d PageData) Can(c string) bool {
	return domainauth.Allows(d.User, domainauth.Capability(c))
}
