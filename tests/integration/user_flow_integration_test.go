//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// These tests run against a live server, for example:
//
//	auditions member add --email admin@quill.example --name Admin --role admin --password ...
//	auditions serve
//	AUDITIONS_TEST_ADMIN_EMAIL=admin@quill.example AUDITIONS_TEST_ADMIN_PASSWORD=... go test -tags integration ./tests/integration

func baseURL() string {
	if v := os.Getenv("AUDITIONS_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:18080"
}

type loginResult struct {
	Token  string `json:"token"`
	UserID string `json:"uid"`
}

func login(t *testing.T, client *http.Client, email, password string) loginResult {
	t.Helper()
	var out loginResult
	doJSON(t, client, http.MethodPost, baseURL()+"/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if out.Token == "" {
		t.Fatalf("login for %s did not return token", email)
	}
	return out
}

func TestAuditionJourneyIntegration(t *testing.T) {
	adminEmail := os.Getenv("AUDITIONS_TEST_ADMIN_EMAIL")
	adminPassword := os.Getenv("AUDITIONS_TEST_ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		t.Skip("AUDITIONS_TEST_ADMIN_EMAIL and AUDITIONS_TEST_ADMIN_PASSWORD not set")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	base := baseURL()
	admin := login(t, client, adminEmail, adminPassword)

	stamp := time.Now().UnixNano()
	password := "Secret123!"
	lciteEmail := fmt.Sprintf("lcite_%d@quill.example", stamp)
	studentEmail := fmt.Sprintf("student_%d@quill.example", stamp)
	for email, role := range map[string]string{lciteEmail: "LCite", studentEmail: "student"} {
		doJSON(t, client, http.MethodPost, base+"/api/admin/members", admin.Token, map[string]string{
			"email":    email,
			"name":     role + " tester",
			"password": password,
			"role":     role,
		}, nil)
	}
	lcite := login(t, client, lciteEmail, password)
	student := login(t, client, studentEmail, password)

	var question struct {
		ID string `json:"id"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/questions", lcite.Token, map[string]string{
		"text": fmt.Sprintf("Integration question %d?", stamp),
	}, &question)
	if question.ID == "" {
		t.Fatalf("expected question id in response")
	}

	var session struct {
		Questions []struct {
			ID string `json:"id"`
		} `json:"questions"`
	}
	doJSON(t, client, http.MethodPost, base+"/api/session", student.Token, nil, &session)
	found := false
	for _, q := range session.Questions {
		found = found || q.ID == question.ID
	}
	if !found {
		t.Fatalf("new question %s missing from session %+v", question.ID, session)
	}
	doJSON(t, client, http.MethodPost, base+"/api/session/answers", student.Token, map[string]string{
		"questionId": question.ID,
		"text":       "Integration answer",
	}, nil)
	doJSON(t, client, http.MethodPost, base+"/api/session/complete", student.Token, nil, nil)

	doJSON(t, client, http.MethodPut, base+"/api/responses/"+student.UserID+"/comments/round1", admin.Token, map[string]string{
		"comment": "Integration comment",
	}, nil)

	reportURL := fmt.Sprintf("%s/api/responses/%s/report?round=round1&format=csv", base, student.UserID)
	req, err := http.NewRequest(http.MethodGet, reportURL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("report request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("report status %d body %s", resp.StatusCode, string(body))
	}
	csvData, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read report data: %v", err)
	}
	if !strings.Contains(string(csvData), "Integration comment") {
		t.Fatalf("report csv did not contain the comment; csv=%s", csvData)
	}
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any, out any) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
