package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"socialnet/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// asUser installs a middleware that authenticates every request as userID.
func asUser(app *fiber.App, userID uint) {
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		return c.Next()
	})
}

func TestGetUserProfile(t *testing.T) {
	app := fiber.New()
	mockRepo := new(MockUserRepository)
	s := &Server{userRepo: mockRepo}

	app.Get("/users/:id", s.GetUserProfile)

	tests := []struct {
		name           string
		userIDParam    string
		mockSetup      func()
		expectedStatus int
	}{
		{
			name:        "Success",
			userIDParam: "1",
			mockSetup: func() {
				mockRepo.On("GetByID", mock.Anything, uint(1)).Return(&models.User{ID: 1, Username: "testuser"}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid ID",
			userIDParam:    "abc",
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "Not Found",
			userIDParam: "99",
			mockSetup: func() {
				mockRepo.On("GetByID", mock.Anything, uint(99)).Return(nil, models.NewNotFoundError("User", 99))
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			req := httptest.NewRequest(http.MethodGet, "/users/"+tt.userIDParam, nil)
			resp, _ := app.Test(req)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestGetMyProfile(t *testing.T) {
	app := fiber.New()
	mockRepo := new(MockUserRepository)
	s := &Server{userRepo: mockRepo}

	asUser(app, 1)
	app.Get("/api/users/me", s.GetMyProfile)

	mockRepo.On("GetByID", mock.Anything, uint(1)).Return(&models.User{ID: 1, Username: "me"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	resp, _ := app.Test(req)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "me", body["username"])
	assert.Equal(t, "http://example.com/api/users/1/", body["url"])
}

func TestUpdateMyProfile(t *testing.T) {
	app := fiber.New()
	mockRepo := new(MockUserRepository)
	s := &Server{userRepo: mockRepo}

	asUser(app, 1)
	app.Put("/api/users/me", s.UpdateMyProfile)

	mockRepo.On("GetByID", mock.Anything, uint(1)).
		Return(&models.User{ID: 1, Username: "me", FirstName: "Old", LastName: "Kept"}, nil)
	mockRepo.On("Update", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.FirstName == "New" && u.LastName == "Kept"
	})).Return(nil)

	resp, err := app.Test(jsonRequest(http.MethodPut, "/api/users/me", map[string]string{"first_name": " New "}))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "New", body["first_name"])
	assert.Equal(t, "Kept", body["last_name"])
	mockRepo.AssertExpectations(t)
}

func TestDeleteUser(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		mockSetup      func(m *MockUserRepository)
		expectedStatus int
	}{
		{
			name:   "Self",
			target: "1",
			mockSetup: func(m *MockUserRepository) {
				m.On("Delete", mock.Anything, uint(1)).Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "Someone else",
			target:         "2",
			mockSetup:      func(m *MockUserRepository) {},
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockUserRepository)
			tt.mockSetup(mockRepo)
			s := &Server{userRepo: mockRepo}

			app := fiber.New()
			asUser(app, 1)
			app.Delete("/api/users/:id", s.DeleteUser)

			resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/users/"+tt.target, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestGetAllUsers(t *testing.T) {
	app := fiber.New()
	mockRepo := new(MockUserRepository)
	s := &Server{userRepo: mockRepo}

	asUser(app, 1)
	app.Get("/api/users", s.GetAllUsers)

	mockRepo.On("List", mock.Anything, 100, 0).Return([]models.User{{ID: 2}, {ID: 1}}, nil)
	mockRepo.On("List", mock.Anything, 5, 10).Return([]models.User{}, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/users", nil))
	require.NoError(t, err)
	var users []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	_ = resp.Body.Close()
	require.Len(t, users, 2)
	assert.Equal(t, "http://example.com/api/users/2/", users[0]["url"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/users?limit=5&offset=10", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mockRepo.AssertExpectations(t)
}

func TestGetLeastFavoriteUsers(t *testing.T) {
	app := fiber.New()
	mockRepo := new(MockUserRepository)
	s := &Server{userRepo: mockRepo}

	asUser(app, 1)
	app.Get("/api/users/least_favorite", s.GetLeastFavoriteUsers)

	mockRepo.On("ListLeastFavorite", mock.Anything).Return([]models.User{{ID: 3, Username: "lonely"}}, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/users/least_favorite", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var users []models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	require.Len(t, users, 1)
	assert.Equal(t, "lonely", users[0].Username)
}
