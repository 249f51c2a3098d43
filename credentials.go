package passgate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Credentials is the request body accepted by the local auth endpoints.
// Each endpoint reads only the fields it needs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Token    string `json:"token"`
}

// maxBodyBytes bounds the size of a credentials payload
const maxBodyBytes = 1 << 16

// parseCredentials reads either a JSON body or a urlencoded form.
// Missing or mistyped fields come back empty so the caller's presence checks
// decide the response.
func parseCredentials(w http.ResponseWriter, r *http.Request) (*Credentials, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return &Credentials{}, fmt.Errorf("error parsing form: %w", err)
		}
		return &Credentials{
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
			Name:     r.FormValue("name"),
			Token:    r.FormValue("token"),
		}, nil
	}

	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		return &Credentials{}, fmt.Errorf("invalid post body: %w", err)
	}
	creds := &Credentials{}
	creds.Email, _ = data["email"].(string)
	creds.Password, _ = data["password"].(string)
	creds.Name, _ = data["name"].(string)
	creds.Token, _ = data["token"].(string)
	return creds, nil
}
