package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/auth/login":                  "/v1/auth/login",
		"/v1/crm/companies":               "/v1/crm/companies",
		"/v1/crm/companies/abc":           "/v1/crm/companies/:id",
		"/v1/crm/companies/abc/extra":     "/v1/crm/companies/abc/extra",
		"/v1/crm/companies?page=2":        "/v1/crm/companies",
		"/v1/crm/companies/abc?fields=id": "/v1/crm/companies/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
