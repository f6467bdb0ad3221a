//nolint:noctx // Test file uses http.NewRequest for simplicity
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/internal/service/engine"
	"github.com/aimd54/levellist/pkg/apperror"
	"github.com/aimd54/levellist/pkg/logger"
)

// Mock Engine
type mockEngine struct {
	levels  map[models.ListType][]models.Level
	users   map[uint]*models.User
	records map[uint]*models.Record

	err      error
	verify   error
	actors   []string
	approver string
	moved    []string
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		levels:  make(map[models.ListType][]models.Level),
		users:   make(map[uint]*models.User),
		records: make(map[uint]*models.Record),
	}
}

func (m *mockEngine) track(ctx context.Context) {
	m.actors = append(m.actors, engine.ActorFrom(ctx))
}

func (m *mockEngine) AddLevel(ctx context.Context, list models.ListType, rank int, details models.LevelDetails) (uint, error) {
	m.track(ctx)
	if m.err != nil {
		return 0, m.err
	}
	id := uint(len(m.levels[list]) + 1)
	m.levels[list] = append(m.levels[list], models.Level{ID: id, Name: details.Name, List: list, Rank: rank})
	return id, nil
}

func (m *mockEngine) MoveLevel(ctx context.Context, id uint, list models.ListType, rank int) error {
	m.track(ctx)
	m.moved = append(m.moved, fmt.Sprintf("%d:%s:%d", id, list, rank))
	return m.err
}

func (m *mockEngine) RelistToLegacy(ctx context.Context, id uint) error {
	m.track(ctx)
	return m.err
}

func (m *mockEngine) DeleteLevel(ctx context.Context, id uint) error {
	m.track(ctx)
	return m.err
}

func (m *mockEngine) EditLevel(ctx context.Context, id uint, details models.LevelDetails) error {
	m.track(ctx)
	return m.err
}

func (m *mockEngine) GetOrderedList(ctx context.Context, list models.ListType) ([]models.Level, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.levels[list], nil
}

func (m *mockEngine) GetLevel(ctx context.Context, id uint) (*models.Level, error) {
	for _, levels := range m.levels {
		for i := range levels {
			if levels[i].ID == id {
				return &levels[i], nil
			}
		}
	}
	return nil, apperror.ErrLevelNotFound
}

func (m *mockEngine) LevelHistory(ctx context.Context, id uint, limit int) ([]models.LevelHistory, error) {
	return []models.LevelHistory{{LevelID: id, Action: models.HistoryAdded}}, nil
}

func (m *mockEngine) RecentHistory(ctx context.Context, limit int) ([]models.LevelHistory, error) {
	return []models.LevelHistory{{LevelID: 1, Action: models.HistoryMoved}, {LevelID: 2, Action: models.HistoryAdded}}, nil
}

func (m *mockEngine) SubmitRecord(ctx context.Context, userID, levelID uint, progress int, videoRef string) (uint, error) {
	if m.err != nil {
		return 0, m.err
	}
	id := uint(len(m.records) + 1)
	m.records[id] = &models.Record{ID: id, UserID: userID, LevelID: levelID, Progress: progress, Status: models.RecordPending}
	return id, nil
}

func (m *mockEngine) ApproveRecord(ctx context.Context, id uint, approver string) error {
	m.track(ctx)
	m.approver = approver
	return m.err
}

func (m *mockEngine) RejectRecord(ctx context.Context, id uint, reason, rejecter string) error {
	m.track(ctx)
	return m.err
}

func (m *mockEngine) DeleteRecord(ctx context.Context, id uint) error {
	m.track(ctx)
	return m.err
}

func (m *mockEngine) PendingRecords(ctx context.Context, limit int) ([]models.Record, error) {
	out := []models.Record{}
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockEngine) GetRecord(ctx context.Context, id uint) (*models.Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, apperror.ErrRecordNotFound
	}
	return r, nil
}

func (m *mockEngine) UserRecords(ctx context.Context, userID uint) ([]models.Record, error) {
	if _, ok := m.users[userID]; !ok {
		return nil, apperror.ErrUserNotFound
	}
	return []models.Record{}, nil
}

func (m *mockEngine) RegisterUser(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", apperror.ErrInvalidInput)
	}
	u := &models.User{ID: uint(len(m.users) + 1), Username: username}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockEngine) GetUser(ctx context.Context, id uint) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return u, nil
}

func (m *mockEngine) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	return []models.User{
		{ID: 2, Username: "zoink", Points: 486.88},
		{ID: 1, Username: "cyclic", Points: 250},
	}, nil
}

func (m *mockEngine) RecomputeUser(ctx context.Context, userID uint) (float64, error) {
	return 250, m.err
}

func (m *mockEngine) RecomputeAllUsers(ctx context.Context) (int, error) {
	m.track(ctx)
	return len(m.users), m.err
}

func (m *mockEngine) VerifyLists(ctx context.Context) error {
	return m.verify
}

// Test Setup
func setupRouter(token string) (*gin.Engine, *mockEngine) {
	gin.SetMode(gin.TestMode)
	mock := newMockEngine()
	router := gin.New()
	NewHandler(mock, token, logger.Nop()).RegisterRoutes(router)
	return router, mock
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

// Tests

func TestGetList_Success(t *testing.T) {
	router, mock := setupRouter("")
	mock.levels[models.ListMain] = []models.Level{
		{ID: 1, Name: "Tartarus", List: models.ListMain, Rank: 1, Points: 250},
		{ID: 2, Name: "Acheron", List: models.ListMain, Rank: 2, Points: 236.88},
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/lists/main", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "main", response["list"])
	assert.Equal(t, float64(2), response["total_levels"])
	levels := response["levels"].([]interface{})
	assert.Equal(t, "Tartarus", levels[0].(map[string]interface{})["name"])
}

func TestGetList_UnknownList(t *testing.T) {
	router, _ := setupRouter("")

	w := doJSON(t, router, http.MethodGet, "/api/v1/lists/extended", nil, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "unknown list")
}

func TestGetList_InternalErrorHidesCause(t *testing.T) {
	router, mock := setupRouter("")
	mock.err = fmt.Errorf("pq: connection refused")

	w := doJSON(t, router, http.MethodGet, "/api/v1/lists/main", nil, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to retrieve list", decode(t, w)["error"])
}

func TestGetLevel_NotFound(t *testing.T) {
	router, _ := setupRouter("")

	w := doJSON(t, router, http.MethodGet, "/api/v1/levels/9", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/levels/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddLevel_RequiresToken(t *testing.T) {
	router, mock := setupRouter("s3cret")
	body := map[string]interface{}{"list": "main", "rank": 1, "name": "Tartarus"}

	w := doJSON(t, router, http.MethodPost, "/api/v1/levels", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/levels", body, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, mock.levels[models.ListMain])

	w = doJSON(t, router, http.MethodPost, "/api/v1/levels", body, map[string]string{
		"Authorization": "Bearer s3cret",
		ActorHeader:     "zoink",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["level_id"])
	require.Len(t, mock.levels[models.ListMain], 1)
	assert.Equal(t, "Tartarus", mock.levels[models.ListMain][0].Name)
	assert.Equal(t, []string{"zoink"}, mock.actors)
}

func TestAddLevel_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		err        error
		wantStatus int
	}{
		{
			name:       "unknown list",
			body:       map[string]interface{}{"list": "extended", "rank": 1, "name": "x"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid rank",
			body:       map[string]interface{}{"list": "main", "rank": 9, "name": "x"},
			err:        fmt.Errorf("rank 9: %w", apperror.ErrInvalidRank),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mock := setupRouter("")
			mock.err = tt.err

			w := doJSON(t, router, http.MethodPost, "/api/v1/levels", tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestMoveLevel_Success(t *testing.T) {
	router, mock := setupRouter("")

	w := doJSON(t, router, http.MethodPut, "/api/v1/levels/3/position", map[string]interface{}{"list": "legacy", "rank": 2}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"3:legacy:2"}, mock.moved)
	assert.Equal(t, []string{defaultActor}, mock.actors)
}

func TestDeleteLevel_StatusMapping(t *testing.T) {
	router, mock := setupRouter("")

	w := doJSON(t, router, http.MethodDelete, "/api/v1/levels/1", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	mock.err = apperror.ErrLevelNotFound
	w = doJSON(t, router, http.MethodDelete, "/api/v1/levels/1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitRecord_BelowThreshold(t *testing.T) {
	router, mock := setupRouter("")
	mock.err = fmt.Errorf("progress 50 < 90: %w", apperror.ErrBelowThreshold)

	w := doJSON(t, router, http.MethodPost, "/api/v1/records", map[string]interface{}{"user_id": 1, "level_id": 1, "progress": 50}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "below level minimum")
}

func TestSubmitRecord_Success(t *testing.T) {
	router, mock := setupRouter("")

	w := doJSON(t, router, http.MethodPost, "/api/v1/records", map[string]interface{}{"user_id": 1, "level_id": 1, "progress": 100}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pending", decode(t, w)["status"])
	assert.Len(t, mock.records, 1)
}

func TestApproveRecord_UsesActorAsApprover(t *testing.T) {
	router, mock := setupRouter("")

	w := doJSON(t, router, http.MethodPost, "/api/v1/records/4/approve", nil, map[string]string{ActorHeader: "cyclic"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cyclic", mock.approver)
}

func TestRejectRecord_AlreadyProcessed(t *testing.T) {
	router, mock := setupRouter("")
	mock.err = apperror.ErrAlreadyProcessed

	w := doJSON(t, router, http.MethodPost, "/api/v1/records/4/reject", map[string]string{"reason": "spliced"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	mock.err = nil
	w = doJSON(t, router, http.MethodPost, "/api/v1/records/4/reject", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUsersAndLeaderboard(t *testing.T) {
	router, _ := setupRouter("")

	w := doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{"username": "cyclic"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/2/records", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/users", map[string]string{"username": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/leaderboard?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode(t, w)["leaderboard"].([]interface{})
	require.Len(t, entries, 2)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["rank"])
	assert.Equal(t, "zoink", first["username"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/leaderboard?limit=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyLists(t *testing.T) {
	router, mock := setupRouter("")

	w := doJSON(t, router, http.MethodGet, "/api/v1/maintenance/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["consistent"])

	mock.verify = fmt.Errorf("%w: main: level 2 has 1.00 points, expected 236.88", apperror.ErrListInconsistent)
	w = doJSON(t, router, http.MethodGet, "/api/v1/maintenance/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, false, response["consistent"])
	assert.Len(t, response["problems"], 1)

	mock.verify = fmt.Errorf("connection reset")
	w = doJSON(t, router, http.MethodGet, "/api/v1/maintenance/verify", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecomputeAll(t *testing.T) {
	router, mock := setupRouter("")
	mock.users[1] = &models.User{ID: 1, Username: "cyclic"}

	w := doJSON(t, router, http.MethodPost, "/api/v1/maintenance/recompute", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["users"])
}

func TestHistoryEndpoints(t *testing.T) {
	router, _ := setupRouter("s3cret")

	w := doJSON(t, router, http.MethodGet, "/api/v1/history", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["history"], 2)

	w = doJSON(t, router, http.MethodGet, "/api/v1/levels/7/history?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), decode(t, w)["level_id"])
}
