package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-compliance/internal/apperr"
	"github.com/ukydev/fleet-compliance/internal/auth"
	"github.com/ukydev/fleet-compliance/internal/db"
	"github.com/ukydev/fleet-compliance/internal/middleware"
	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthHandler serves account endpoints: login, registration and the
// caller's own profile.
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	log            log.FieldLogger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, logger log.FieldLogger) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		log:            logger,
	}
}

// Login exchanges a username and password for a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, r, h.log, apperr.Validationf("auth.Login", "username and password are required"))
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), req.Username)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("find user: %w", err))
		return
	}
	if !user.IsActive {
		http.Error(w, "Account is deactivated", http.StatusUnauthorized)
		return
	}
	if !h.authService.CheckPassword(req.Password, user.PasswordHash) {
		h.log.WithField("user_id", user.ID.Hex()).Info("Rejected login with a wrong password")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	resp, err := h.issueTokens(user)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		h.log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("Failed to update last login")
	}
	writeJSON(w, http.StatusOK, resp)
}

// Register creates an account bound to a tenant. Super admins are
// provisioned out of band and driver accounts must name their driver.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	user, err := h.newUser(req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.checkAvailable(r.Context(), user.Username, user.Email); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.userCollection.InsertUser(r.Context(), *user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			err = apperr.Policyf("auth.Register", "username or email already exists")
		} else {
			err = fmt.Errorf("insert user: %w", err)
		}
		writeError(w, r, h.log, err)
		return
	}
	h.log.WithFields(log.Fields{
		"user_id":   user.ID.Hex(),
		"tenant_id": user.TenantID.Hex(),
		"role":      user.Role,
	}).Info("User registered")

	resp, err := h.issueTokens(user)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) newUser(req models.RegisterRequest) (*models.User, error) {
	const op = "auth.Register"
	for _, check := range []func() error{
		func() error { return h.authService.ValidateUsername(req.Username) },
		func() error { return h.authService.ValidateEmail(req.Email) },
		func() error { return h.authService.ValidatePassword(req.Password) },
	} {
		if err := check(); err != nil {
			return nil, apperr.Wrap(apperr.Validation, op, err, "")
		}
	}
	if !models.IsValidRole(req.Role) || req.Role == models.RoleSuperAdmin {
		return nil, apperr.Validationf(op, "invalid role %q", req.Role)
	}
	tenantID, err := primitive.ObjectIDFromHex(req.TenantID)
	if err != nil {
		return nil, apperr.Validationf(op, "invalid tenant_id %q", req.TenantID)
	}
	var driverID *primitive.ObjectID
	if req.DriverID != "" {
		id, err := primitive.ObjectIDFromHex(req.DriverID)
		if err != nil {
			return nil, apperr.Validationf(op, "invalid driver_id %q", req.DriverID)
		}
		driverID = &id
	}
	if req.Role == models.RoleDriver && driverID == nil {
		return nil, apperr.Validationf(op, "driver_id is required for driver accounts")
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now()
	return &models.User{
		ID:           primitive.NewObjectID(),
		TenantID:     tenantID,
		DriverID:     driverID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// checkAvailable fails with a conflict when the username or email is taken.
func (h *AuthHandler) checkAvailable(ctx context.Context, username, email string) error {
	if _, err := h.userCollection.FindUserByUsername(ctx, username); err == nil {
		return apperr.Policyf("auth.Register", "username already exists")
	} else if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("find user by username: %w", err)
	}
	if _, err := h.userCollection.FindUserByEmail(ctx, email); err == nil {
		return apperr.Policyf("auth.Register", "email already exists")
	} else if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("find user by email: %w", err)
	}
	return nil
}

func (h *AuthHandler) issueTokens(user *models.User) (*models.LoginResponse, error) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	refresh, err := h.authService.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &models.LoginResponse{Token: token, RefreshToken: refresh, User: *user}, nil
}

// currentUser loads the account of the authenticated caller.
func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return nil, false
	}
	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("find user: %w", err))
		return nil, false
	}
	return user, true
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile changes the caller's name and email. Empty fields are kept.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Email != "" && req.Email != user.Email {
		if err := h.authService.ValidateEmail(req.Email); err != nil {
			writeError(w, r, h.log, apperr.Wrap(apperr.Validation, "auth.UpdateProfile", err, ""))
			return
		}
		existing, err := h.userCollection.FindUserByEmail(r.Context(), req.Email)
		switch {
		case err == nil && existing.ID != user.ID:
			writeError(w, r, h.log, apperr.Policyf("auth.UpdateProfile", "email already exists"))
			return
		case err != nil && !errors.Is(err, db.ErrNotFound):
			writeError(w, r, h.log, fmt.Errorf("find user by email: %w", err))
			return
		}
		user.Email = req.Email
	}

	if err := h.userCollection.UpdateUser(r.Context(), user.ID.Hex(), *user); err != nil {
		writeError(w, r, h.log, fmt.Errorf("update user: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Profile updated successfully"})
}

// ChangePassword replaces the caller's password after checking the current one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	const op = "auth.ChangePassword"
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, r, h.log, apperr.Validationf(op, "current password and new password are required"))
		return
	}
	if err := h.authService.ValidatePassword(req.NewPassword); err != nil {
		writeError(w, r, h.log, apperr.Wrap(apperr.Validation, op, err, ""))
		return
	}
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !h.authService.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		http.Error(w, "Current password is incorrect", http.StatusUnauthorized)
		return
	}

	hash, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("hash password: %w", err))
		return
	}
	user.PasswordHash = hash
	if err := h.userCollection.UpdateUser(r.Context(), user.ID.Hex(), *user); err != nil {
		writeError(w, r, h.log, fmt.Errorf("update password: %w", err))
		return
	}
	h.log.WithField("user_id", user.ID.Hex()).Info("Password changed")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

// ListUsers returns the accounts of the caller's tenant
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	users, err := h.userCollection.FindUsersByTenant(r.Context(), actor.TenantID)
	if err != nil {
		writeError(w, r, h.log, fmt.Errorf("list users: %w", err))
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}
