package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"health", "jobs", "retry", "kill", "reset", "migrate"} {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s command not found in rootCmd", name)
		}
	}
}

func TestPostJobRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":false,"message":"organization has pending jobs"}`)
	}))
	defer srv.Close()

	old := serverURL
	serverURL = srv.URL
	defer func() { serverURL = old }()

	err := postJob("/v1/tools/org/acme/reset", "")
	if err == nil {
		t.Fatal("expected refusal error")
	}
}

func TestPostJobAdmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"job":{"id":3,"taskName":"workspace/reset","status":"pending"}}`)
	}))
	defer srv.Close()

	old := serverURL
	serverURL = srv.URL
	defer func() { serverURL = old }()

	if err := postJob("/v1/tools/org/acme/reset", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetJSONServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	old := serverURL
	serverURL = srv.URL
	defer func() { serverURL = old }()

	var out HealthResponse
	if err := getJSON("/health", &out); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
