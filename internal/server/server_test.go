package server_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/config"
	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/server"
	"github.com/calebmorris/habit-scheduler/internal/services"
	"github.com/calebmorris/habit-scheduler/internal/testutil"
)

const testAdminToken = "test-admin-token"

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	cfg := config.Config{
		Port:          "8080",
		Location:      time.UTC,
		AdminAPIToken: testAdminToken,
	}
	return server.New(db, cfg).Router()
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Authorization", "Bearer "+testAdminToken)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func createScheduleRequest(t *testing.T, handler http.Handler, body string) models.ScheduledHabit {
	t.Helper()
	response := doRequest(t, handler, http.MethodPost, "/api/schedules", body)
	if response.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", response.Code, response.Body.String())
	}
	var schedule models.ScheduledHabit
	if err := json.Unmarshal(response.Body.Bytes(), &schedule); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return schedule
}

const validScheduleBody = `{
	"user_id": "user-1",
	"assigned_by_id": "admin-1",
	"category": "exercise",
	"name": "Morning Run",
	"target_value": 30,
	"unit": "minutes",
	"recurrence_type": "weekly",
	"recurrence": {"days": [1, 3, 5]},
	"start_date": "2024-01-01",
	"instructions": "Easy pace"
}`

func TestHealth(t *testing.T) {
	handler := newTestServer(t)

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	handler := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"wrong token", "Bearer not-the-token"},
		{"wrong scheme", "Basic " + testAdminToken},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/api/schedules", nil)
			if test.token != "" {
				request.Header.Set("Authorization", test.token)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			if recorder.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", recorder.Code)
			}
		})
	}
}

func TestCreateSchedule(t *testing.T) {
	handler := newTestServer(t)

	schedule := createScheduleRequest(t, handler, validScheduleBody)
	if schedule.ID == "" {
		t.Errorf("expected generated id")
	}
	if schedule.Status != models.ScheduleStatusActive {
		t.Errorf("expected active, got %s", schedule.Status)
	}
	if !schedule.AutoCreate {
		t.Errorf("expected auto_create to default to true")
	}
}

func TestCreateSchedule_ValidationError(t *testing.T) {
	handler := newTestServer(t)

	body := `{
		"user_id": "user-1",
		"assigned_by_id": "admin-1",
		"category": "exercise",
		"name": "Morning Run",
		"recurrence_type": "weekly",
		"recurrence": {"days": []},
		"start_date": "2024-01-01"
	}`
	response := doRequest(t, handler, http.MethodPost, "/api/schedules", body)
	if response.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", response.Code, response.Body.String())
	}
}

func TestGetSchedule_NotFound(t *testing.T) {
	handler := newTestServer(t)

	response := doRequest(t, handler, http.MethodGet, "/api/schedules/missing", "")
	if response.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", response.Code)
	}
}

func TestUpdateSchedule(t *testing.T) {
	handler := newTestServer(t)
	schedule := createScheduleRequest(t, handler, validScheduleBody)

	response := doRequest(t, handler, http.MethodPost, "/api/schedules/"+schedule.ID,
		`{"name": "Evening Run", "target_value": 45}`)
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	var updated models.ScheduledHabit
	if err := json.Unmarshal(response.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if updated.Name != "Evening Run" || updated.TargetValue != 45 {
		t.Errorf("update not applied: %+v", updated)
	}
}

func TestDeleteSchedule(t *testing.T) {
	handler := newTestServer(t)
	schedule := createScheduleRequest(t, handler, validScheduleBody)

	response := doRequest(t, handler, http.MethodDelete, "/api/schedules/"+schedule.ID, "")
	if response.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.Code)
	}

	response = doRequest(t, handler, http.MethodGet, "/api/schedules/"+schedule.ID, "")
	if response.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", response.Code)
	}
}

func TestSetStatus(t *testing.T) {
	handler := newTestServer(t)
	schedule := createScheduleRequest(t, handler, validScheduleBody)

	response := doRequest(t, handler, http.MethodPost, "/api/schedules/"+schedule.ID+"/status",
		`{"status": "paused"}`)
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	// Completing a paused schedule is not a valid transition.
	response = doRequest(t, handler, http.MethodPost, "/api/schedules/"+schedule.ID+"/status",
		`{"status": "completed"}`)
	if response.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", response.Code, response.Body.String())
	}
}

func TestMaterialize(t *testing.T) {
	handler := newTestServer(t)
	createScheduleRequest(t, handler, validScheduleBody)

	// 2024-01-03 is a Wednesday, a scheduled day.
	response := doRequest(t, handler, http.MethodPost, "/api/materialize", `{"date": "2024-01-03"}`)
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	var report services.MaterializationReport
	if err := json.Unmarshal(response.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Date != "2024-01-03" || report.Created != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	// Repeat run reports the entry as existing.
	response = doRequest(t, handler, http.MethodPost, "/api/materialize", `{"date": "2024-01-03"}`)
	if err := json.Unmarshal(response.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Created != 0 || report.Existing != 1 {
		t.Errorf("expected idempotent rerun, got %+v", report)
	}
}

func TestMaterialize_InvalidDate(t *testing.T) {
	handler := newTestServer(t)

	response := doRequest(t, handler, http.MethodPost, "/api/materialize", `{"date": "03/01/2024"}`)
	if response.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", response.Code)
	}
}

func TestCalendar(t *testing.T) {
	handler := newTestServer(t)
	createScheduleRequest(t, handler, validScheduleBody)

	path := fmt.Sprintf("/api/calendar?user_id=%s&from=%s&to=%s", "user-1", "2024-01-01", "2024-01-07")
	response := doRequest(t, handler, http.MethodGet, path, "")
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}

	var occurrences []models.Occurrence
	if err := json.Unmarshal(response.Body.Bytes(), &occurrences); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	// Mon, Wed, Fri in the first week of 2024.
	if len(occurrences) != 3 {
		t.Errorf("expected 3 occurrences, got %d: %+v", len(occurrences), occurrences)
	}
}

func TestCalendar_EmptyResultIsArray(t *testing.T) {
	handler := newTestServer(t)

	path := "/api/calendar?user_id=nobody&from=2024-01-01&to=2024-01-07"
	response := doRequest(t, handler, http.MethodGet, path, "")
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.Code)
	}
	if body := strings.TrimSpace(response.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestCalendar_MissingParams(t *testing.T) {
	handler := newTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing user", "/api/calendar?from=2024-01-01&to=2024-01-07"},
		{"missing range", "/api/calendar?user_id=user-1"},
		{"bad date", "/api/calendar?user_id=user-1&from=yesterday&to=2024-01-07"},
		{"inverted range", "/api/calendar?user_id=user-1&from=2024-01-07&to=2024-01-01"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := doRequest(t, handler, http.MethodGet, test.path, "")
			if response.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", response.Code)
			}
		})
	}
}

func TestTokens_CreateAndUse(t *testing.T) {
	handler := newTestServer(t)

	response := doRequest(t, handler, http.MethodPost, "/api/tokens", `{"name": "ci", "scope": "api"}`)
	if response.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", response.Code, response.Body.String())
	}

	var created struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(response.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Token == "" {
		t.Fatalf("expected raw token in create response")
	}

	// The new token authenticates API calls.
	request := httptest.NewRequest(http.MethodGet, "/api/schedules", nil)
	request.Header.Set("Authorization", "Bearer "+created.Token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 with issued token, got %d", recorder.Code)
	}

	// After deletion it no longer does.
	response = doRequest(t, handler, http.MethodDelete, "/api/tokens/"+created.ID, "")
	if response.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.Code)
	}
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request.Clone(request.Context()))
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after token deletion, got %d", recorder.Code)
	}
}

func TestICalFeed(t *testing.T) {
	handler := newTestServer(t)
	createScheduleRequest(t, handler, `{
		"user_id": "user-1",
		"assigned_by_id": "admin-1",
		"category": "exercise",
		"name": "Morning Run",
		"recurrence_type": "daily",
		"start_date": "2024-01-01"
	}`)

	request := httptest.NewRequest(http.MethodGet,
		"/ical?token="+testAdminToken+"&user_id=user-1", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "Morning Run") {
		t.Errorf("unexpected feed body: %s", body)
	}
}

func TestICalFeed_RejectsBadToken(t *testing.T) {
	handler := newTestServer(t)

	request := httptest.NewRequest(http.MethodGet, "/ical?token=wrong&user_id=user-1", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", recorder.Code)
	}
}
