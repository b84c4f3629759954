package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/domain/sso"
)

// wireID accepts numeric and string identifiers.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = wireID(n.String())
	return nil
}

// wireUser tolerates both camelCase and snake_case field spellings.
type wireUser struct {
	ID       wireID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`

	FirstName      string `json:"firstName"`
	FirstNameSnake string `json:"first_name"`
	LastName       string `json:"lastName"`
	LastNameSnake  string `json:"last_name"`
	Phone          string `json:"phone"`
	Position       string `json:"position"`
	Division       string `json:"division"`
	DivisionName   string `json:"divisionName"`
	BusinessUnit   string `json:"businessUnit"`
	BusinessUnitSn string `json:"business_unit"`
	Avatar         string `json:"avatar"`
	AvatarURL      string `json:"avatarUrl"`
	HireDate       string `json:"hireDate"`
	HireDateSnake  string `json:"hire_date"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func parseHireDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// decoder turns backend JSON documents into domain values.
type decoder struct {
	userPath string
	roleExpr string
}

func newDecoder(userPath, roleExpr string) (decoder, error) {
	d := decoder{
		userPath: firstNonEmpty(userPath, "@"),
		roleExpr: firstNonEmpty(roleExpr, "role"),
	}
	if _, err := jmespath.Compile(d.userPath); err != nil {
		return decoder{}, fmt.Errorf("invalid user path %q: %w", d.userPath, err)
	}
	if _, err := jmespath.Compile(d.roleExpr); err != nil {
		return decoder{}, fmt.Errorf("invalid role expression %q: %w", d.roleExpr, err)
	}
	return d, nil
}

// parse decodes body into a generic document suitable for JMESPath.
func parse(body []byte) (any, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return doc, nil
}

// user locates the user object inside doc with userPath and maps it.
func (d decoder) user(doc any) (domainauth.User, error) {
	found, err := jmespath.Search(d.userPath, doc)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("locate user: %w", err)
	}
	return d.userObject(found)
}

func (d decoder) userObject(obj any) (domainauth.User, error) {
	m, ok := obj.(map[string]any)
	if !ok {
		return domainauth.User{}, fmt.Errorf("user payload is %T, want object", obj)
	}

	rawRole, err := jmespath.Search(d.roleExpr, m)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("evaluate role: %w", err)
	}
	roleStr, ok := rawRole.(string)
	if !ok {
		return domainauth.User{}, fmt.Errorf("role is %T, want string", rawRole)
	}
	role, err := domainauth.ParseRole(roleStr)
	if err != nil {
		return domainauth.User{}, err
	}

	b, err := json.Marshal(m)
	if err != nil {
		return domainauth.User{}, fmt.Errorf("re-encode user: %w", err)
	}
	var w wireUser
	if err := json.Unmarshal(b, &w); err != nil {
		return domainauth.User{}, fmt.Errorf("decode user: %w", err)
	}
	if w.ID == "" {
		return domainauth.User{}, fmt.Errorf("user payload has no id")
	}

	return domainauth.User{
		ID:       string(w.ID),
		Username: w.Username,
		Email:    w.Email,
		Role:     role,
		Profile: domainauth.Profile{
			FirstName:    firstNonEmpty(w.FirstName, w.FirstNameSnake),
			LastName:     firstNonEmpty(w.LastName, w.LastNameSnake),
			Phone:        w.Phone,
			Position:     w.Position,
			Division:     firstNonEmpty(w.Division, w.DivisionName),
			BusinessUnit: firstNonEmpty(w.BusinessUnit, w.BusinessUnitSn),
			AvatarURL:    firstNonEmpty(w.AvatarURL, w.Avatar),
			HireDate:     parseHireDate(firstNonEmpty(w.HireDate, w.HireDateSnake)),
		},
	}, nil
}

// token extracts an access token from a login or exchange response.
func token(doc any) (domainauth.Credential, error) {
	v, err := jmespath.Search("accessToken || access_token || token", doc)
	if err != nil {
		return "", fmt.Errorf("locate token: %w", err)
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("response carries no access token")
	}
	return domainauth.Credential(s), nil
}

type wireApplication struct {
	ID           wireID `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	RequiresAuth *bool  `json:"requiresAuth"`
	RequiresSn   *bool  `json:"requires_auth"`
}

// applications accepts a bare array or an {applications: [...]} / {data: [...]}
// envelope. Envelope keys are matched on presence, so an empty list is a valid
// (empty) directory.
func applications(doc any) ([]sso.Application, error) {
	list, err := jmespath.Search("not_null(applications, data, @)", doc)
	if err != nil {
		return nil, fmt.Errorf("locate applications: %w", err)
	}
	if _, ok := list.([]any); !ok {
		return nil, fmt.Errorf("applications payload is %T, want array", list)
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("re-encode applications: %w", err)
	}
	var wire []wireApplication
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, fmt.Errorf("decode applications: %w", err)
	}

	out := make([]sso.Application, 0, len(wire))
	for _, w := range wire {
		if w.ID == "" || strings.TrimSpace(w.URL) == "" {
			continue
		}
		requires := true
		switch {
		case w.RequiresAuth != nil:
			requires = *w.RequiresAuth
		case w.RequiresSn != nil:
			requires = *w.RequiresSn
		}
		out = append(out, sso.Application{
			ID:           strings.ToLower(string(w.ID)),
			Name:         firstNonEmpty(w.Name, string(w.ID)),
			Description:  w.Description,
			URL:          w.URL,
			RequiresAuth: requires,
		})
	}
	return out, nil
}

// boolField reads a boolean at expr, treating anything else as false.
func boolField(doc any, expr string) bool {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}
