package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"booking-service/internal/booking"
	"booking-service/internal/ratelimit"
	"booking-service/internal/store/memory"
	"booking-service/internal/timeofday"
)

const (
	adminToken = "admin-secret"
	jwtSecret  = "jwt-secret"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	app    *App
	router *gin.Engine
	store  *memory.Store
}

func newTestEnv(t *testing.T, limits ratelimit.Limits) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	store.AddCandidate(booking.Candidate{ID: "cand-1", Name: "Aoi Tanaka", Token: "tok-1"})
	store.AddSlot(booking.Slot{
		ID:            "s1",
		CandidateID:   "cand-1",
		Date:          day,
		Start:         timeofday.MustParse("09:00"),
		End:           timeofday.MustParse("10:00"),
		InterviewType: booking.Online,
		Status:        booking.StatusAvailable,
	})

	limitStore, err := ratelimit.NewMemoryStore(64)
	if err != nil {
		t.Fatal(err)
	}

	a := &App{
		Engine:  booking.NewEngine(store, nil, booking.Config{OnlineBufferMinutes: 15, OnsiteBufferMinutes: 30}, zerolog.Nop()),
		Limiter: ratelimit.New(limitStore),
		Limits:  limits,
		Auth:    AuthConfig{StaticTokens: []string{adminToken}, JWTSecret: jwtSecret},
		Logger:  zerolog.Nop(),
	}
	return &testEnv{app: a, router: a.Router(), store: store}
}

func defaultLimits() ratelimit.Limits {
	return ratelimit.Limits{MaxRequests: 100, Window: time.Minute}
}

func (e *testEnv) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "198.51.100.10:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

type bookResponse struct {
	Success bool `json:"success"`
	Booking struct {
		ID            string `json:"id"`
		CandidateName string `json:"candidateName"`
		CompanyName   string `json:"companyName"`
		Date          string `json:"date"`
		StartTime     string `json:"startTime"`
		EndTime       string `json:"endTime"`
		InterviewType string `json:"interviewType"`
	} `json:"booking"`
	BlockedSchedules []string          `json:"blockedSchedules"`
	NewSchedules     []timeofday.Range `json:"newSchedules"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestBookEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(http.MethodPost, "/schedule/tok-1/book",
		`{"scheduleId":"s1","startTime":"09:15","endTime":"09:45","companyName":"Acme"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	resp := decode[bookResponse](t, w)

	if !resp.Success || resp.Booking.ID == "" {
		t.Fatalf("unexpected response %s", w.Body.String())
	}
	b := resp.Booking
	if b.CandidateName != "Aoi Tanaka" || b.CompanyName != "Acme" || b.Date != "2026-03-02 (Mon)" ||
		b.StartTime != "09:15" || b.EndTime != "09:45" || b.InterviewType != "online" {
		t.Fatalf("unexpected booking %+v", b)
	}
	if resp.BlockedSchedules == nil || len(resp.BlockedSchedules) != 0 {
		t.Fatalf("blockedSchedules = %v", resp.BlockedSchedules)
	}
	if len(resp.NewSchedules) != 2 || resp.NewSchedules[0].String() != "09:00-09:15" || resp.NewSchedules[1].String() != "09:45-10:00" {
		t.Fatalf("newSchedules = %+v", resp.NewSchedules)
	}
}

func TestBookEndpointErrors(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   booking.Kind
	}{
		{"unknown token", "/schedule/nope/book", `{"scheduleId":"s1","startTime":"09:00","endTime":"09:30","companyName":"A"}`, http.StatusNotFound, booking.KindInvalidToken},
		{"malformed json", "/schedule/tok-1/book", `{"scheduleId":`, http.StatusBadRequest, booking.KindInvalidRequest},
		{"missing fields", "/schedule/tok-1/book", `{"scheduleId":"s1"}`, http.StatusBadRequest, booking.KindInvalidRequest},
		{"bad range", "/schedule/tok-1/book", `{"scheduleId":"s1","startTime":"09:30","endTime":"09:00","companyName":"A"}`, http.StatusBadRequest, booking.KindInvalidTimeRange},
		{"unknown slot", "/schedule/tok-1/book", `{"scheduleId":"zz","startTime":"09:00","endTime":"09:30","companyName":"A"}`, http.StatusNotFound, booking.KindScheduleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			body := decode[errorBody](t, w)
			if body.Error != string(tt.kind) || body.Message == "" {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestBookEndpointRateLimited(t *testing.T) {
	env := newTestEnv(t, ratelimit.Limits{MaxRequests: 2, Window: time.Minute})
	body := `{"scheduleId":"missing","startTime":"09:00","endTime":"09:30","companyName":"A"}`

	for i := 0; i < 2; i++ {
		if w := env.do(http.MethodPost, "/schedule/tok-1/book", body); w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i)
		}
	}

	w := env.do(http.MethodPost, "/schedule/tok-1/book", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry <= 0 {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	if decode[errorBody](t, w).Error != string(booking.KindRateLimited) {
		t.Fatalf("body = %s", w.Body.String())
	}

	// Browsing availability has its own budget.
	if w := env.do(http.MethodGet, "/schedule/tok-1", ""); w.Code != http.StatusOK {
		t.Fatalf("availability status = %d", w.Code)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	w := env.do(http.MethodGet, "/schedule/tok-1?date=2026-03-02", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	got := decode[booking.CandidateAvailability](t, w)
	if got.CandidateName != "Aoi Tanaka" || len(got.Slots) != 1 || got.Slots[0].ID != "s1" {
		t.Fatalf("unexpected availability %+v", got)
	}

	if w := env.do(http.MethodGet, "/schedule/tok-1?date=02-03-2026", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", w.Code)
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	env := newTestEnv(t, defaultLimits())

	for _, header := range [][]string{
		nil,
		{"Authorization", "Basic abc"},
		{"Authorization", "Bearer wrong"},
	} {
		w := env.do(http.MethodGet, "/api/candidates/cand-1/slots", "", header...)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %v: status %d", header, w.Code)
		}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "recruiter-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatal(err)
	}
	if w := env.do(http.MethodGet, "/api/candidates/cand-1/slots", "", "Authorization", "Bearer "+token); w.Code != http.StatusOK {
		t.Fatalf("jwt status = %d", w.Code)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatal(err)
	}
	if w := env.do(http.MethodGet, "/api/candidates/cand-1/slots", "", "Authorization", "Bearer "+expired); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired jwt status = %d", w.Code)
	}
}

func TestAdminLifecycle(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	auth := []string{"Authorization", "Bearer " + adminToken}

	w := env.do(http.MethodPost, "/api/candidates", `{"name":"Ren Sato","onsiteBufferMinutes":45}`, auth...)
	if w.Code != http.StatusCreated {
		t.Fatalf("register status %d: %s", w.Code, w.Body.String())
	}
	reg := decode[struct {
		Candidate    booking.Candidate `json:"candidate"`
		SchedulePath string            `json:"schedulePath"`
	}](t, w)
	if reg.Candidate.ID == "" || reg.SchedulePath != "/schedule/"+reg.Candidate.Token {
		t.Fatalf("unexpected registration %+v", reg)
	}

	w = env.do(http.MethodPost, "/api/companies", `{"name":"Globex"}`, auth...)
	if w.Code != http.StatusCreated {
		t.Fatalf("company status %d: %s", w.Code, w.Body.String())
	}
	company := decode[booking.Company](t, w)

	w = env.do(http.MethodPost, "/api/candidates/"+reg.Candidate.ID+"/slots",
		`[{"date":"2026-03-03","startTime":"13:00","endTime":"15:00","interviewType":"onsite"}]`, auth...)
	if w.Code != http.StatusCreated {
		t.Fatalf("publish status %d: %s", w.Code, w.Body.String())
	}
	slots := decode[[]booking.Slot](t, w)
	if len(slots) != 1 || slots[0].InterviewType != booking.Onsite {
		t.Fatalf("unexpected slots %+v", slots)
	}

	w = env.do(http.MethodPost, "/api/candidates/"+reg.Candidate.ID+"/slots",
		`[{"date":"2026-03-03","startTime":"14:00","endTime":"16:00","interviewType":"onsite"}]`, auth...)
	if w.Code != http.StatusConflict {
		t.Fatalf("overlapping publish status %d", w.Code)
	}

	w = env.do(http.MethodPost, reg.SchedulePath+"/book", `{"scheduleId":"`+slots[0].ID+`","startTime":"13:00","endTime":"14:00","interviewType":"onsite","companyId":"`+company.ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("book status %d: %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/api/candidates/"+reg.Candidate.ID+"/bookings", "", auth...)
	if w.Code != http.StatusOK {
		t.Fatalf("bookings status %d", w.Code)
	}
	bookings := decode[[]booking.Booking](t, w)
	if len(bookings) != 1 || bookings[0].CompanyName != "Globex" {
		t.Fatalf("unexpected bookings %+v", bookings)
	}

	w = env.do(http.MethodDelete, "/api/bookings/"+bookings[0].ID, "", auth...)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodDelete, "/api/bookings/"+bookings[0].ID, "", auth...); w.Code != http.StatusConflict {
		t.Fatalf("second cancel status %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/candidates/"+reg.Candidate.ID+"/slots?date=2026-03-03", "", auth...)
	live := decode[[]booking.Slot](t, w)
	var availableID string
	for _, s := range live {
		if s.Status == booking.StatusAvailable && s.Range().String() == "14:00-15:00" {
			availableID = s.ID
		}
	}
	if availableID == "" {
		t.Fatalf("leftover slot missing: %+v", live)
	}
	if w := env.do(http.MethodDelete, "/api/slots/"+availableID, "", auth...); w.Code != http.StatusOK {
		t.Fatalf("withdraw status %d", w.Code)
	}
	if w := env.do(http.MethodDelete, "/api/slots/missing", "", auth...); w.Code != http.StatusNotFound {
		t.Fatalf("withdraw missing status %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	if w := env.do(http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	env.app.Ping = func(context.Context) error { return context.DeadlineExceeded }
	if w := env.do(http.MethodGet, "/healthz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", w.Code)
	}
}

func TestCalendarRoutesWithoutConfiguration(t *testing.T) {
	env := newTestEnv(t, defaultLimits())
	auth := []string{"Authorization", "Bearer " + adminToken}

	for _, path := range []string{"/api/calendar/auth", "/api/calendar/events"} {
		if w := env.do(http.MethodGet, path, "", auth...); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status %d", path, w.Code)
		}
	}
	if w := env.do(http.MethodGet, "/oauth2callback?code=x&state=y", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("callback status %d", w.Code)
	}
}

func TestGoogleOAuthFlow(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt-123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	env := newTestEnv(t, defaultLimits())
	env.app.OAuth = &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/oauth2callback",
		Endpoint:     oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token"},
	}
	auth := []string{"Authorization", "Bearer " + adminToken}

	w := env.do(http.MethodGet, "/api/calendar/auth", "", auth...)
	if w.Code != http.StatusOK {
		t.Fatalf("auth status %d", w.Code)
	}
	start := decode[map[string]string](t, w)
	if !strings.Contains(start["authUrl"], "access_type=offline") || start["state"] == "" {
		t.Fatalf("unexpected auth response %v", start)
	}

	if w := env.do(http.MethodGet, "/oauth2callback?code=abc&state=forged", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("forged state status %d", w.Code)
	}

	w = env.do(http.MethodGet, "/oauth2callback?code=abc&state="+start["state"], "")
	if w.Code != http.StatusOK {
		t.Fatalf("callback status %d: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]string](t, w)["refreshToken"]; got != "rt-123" {
		t.Fatalf("refreshToken = %q", got)
	}

	if w := env.do(http.MethodGet, "/oauth2callback?code=abc&state="+start["state"], ""); w.Code != http.StatusBadRequest {
		t.Fatalf("state must be single use, status %d", w.Code)
	}
}

func TestCalendarEvents(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(calendar.Events{Items: []*calendar.Event{{
			Id:        "ev1",
			Summary:   "Interview: Aoi Tanaka / Acme",
			Status:    "confirmed",
			Start:     &calendar.EventDateTime{DateTime: "2026-03-02T09:15:00Z"},
			End:       &calendar.EventDateTime{DateTime: "2026-03-02T09:45:00Z"},
			Attendees: []*calendar.EventAttendee{{Email: "recruiter@example.com"}},
		}, {
			Id:      "ev2",
			Summary: "Onsite day",
			Status:  "confirmed",
			Start:   &calendar.EventDateTime{Date: "2026-03-03"},
			End:     &calendar.EventDateTime{Date: "2026-03-04"},
		}}})
		_, _ = w.Write(buf.Bytes())
	}))
	defer ts.Close()

	srv, err := calendar.NewService(context.Background(), option.WithHTTPClient(ts.Client()), option.WithEndpoint(ts.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, defaultLimits())
	env.app.Calendar = srv
	env.app.CalendarID = "team"
	auth := []string{"Authorization", "Bearer " + adminToken}

	if w := env.do(http.MethodGet, "/api/calendar/events?time_min=yesterday", "", auth...); w.Code != http.StatusBadRequest {
		t.Fatalf("bad time_min status %d", w.Code)
	}
	for i := 0; i < 10; i++ {
		w := env.do(http.MethodGet, "/api/calendar/events?time_min=yesterday&time_max=tomorrow", "", auth...)
		if body := decode[errorBody](t, w); w.Code != http.StatusBadRequest || body.Message != "time_min must be RFC3339" {
			t.Fatalf("both malformed: status %d, message %q", w.Code, body.Message)
		}
	}

	w := env.do(http.MethodGet, "/api/calendar/events?time_min=2026-03-01T00:00:00Z", "", auth...)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(gotPath, "/calendars/team/events") {
		t.Fatalf("request path = %q", gotPath)
	}
	resp := decode[struct {
		Events []CalendarEvent `json:"events"`
		Count  int             `json:"count"`
	}](t, w)
	if resp.Count != 2 || resp.Events[0].ID != "ev1" || resp.Events[0].Attendees[0] != "recruiter@example.com" {
		t.Fatalf("unexpected events %+v", resp)
	}
	if !resp.Events[0].StartTime.Equal(time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", resp.Events[0].StartTime)
	}
	allDay := resp.Events[1]
	if !allDay.StartTime.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) || !allDay.EndTime.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("all-day event times = %v - %v", allDay.StartTime, allDay.EndTime)
	}
}
