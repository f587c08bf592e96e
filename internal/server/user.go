package server

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func bcryptHash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func comparePassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

type UserManager struct {
	filePath       string
	sessionTimeout time.Duration
	users          map[string]*User
	sessions       map[string]*Session // token -> Session
	mu             sync.RWMutex
}

func NewUserManager(dataDir string, sessionTimeout time.Duration) *UserManager {
	return &UserManager{
		filePath:       filepath.Join(dataDir, "users.json"),
		sessionTimeout: sessionTimeout,
		users:          make(map[string]*User),
		sessions:       make(map[string]*Session),
	}
}

func (um *UserManager) Register(username, password string) error {
	um.mu.Lock()
	defer um.mu.Unlock()

	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return errors.New("username required")
	}
	if strings.EqualFold(trimmed, "system") {
		return errors.New("reserved username")
	}
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}

	if _, exists := um.users[username]; exists {
		return errors.New("user already exists")
	}

	hashed, err := bcryptHash(password)
	if err != nil {
		return err
	}

	um.users[username] = &User{
		Username:     username,
		PasswordHash: hashed,
	}
	um.saveUsersLocked()
	return nil
}

func (um *UserManager) Login(username, password string) (string, error) {
	um.mu.RLock()
	user, exists := um.users[username]
	um.mu.RUnlock()

	if !exists {
		return "", errors.New("invalid credentials")
	}

	if err := comparePassword(user.PasswordHash, password); err != nil {
		return "", errors.New("invalid credentials")
	}

	token, err := generateToken()
	if err != nil {
		return "", errors.New("failed to generate session token")
	}

	session := &Session{
		Token:     token,
		Username:  username,
		ExpiresAt: time.Now().Add(um.sessionTimeout),
	}

	um.mu.Lock()
	um.sessions[token] = session
	um.mu.Unlock()

	go um.cleanupExpiredSessions()

	return token, nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateToken checks if a token is valid and not expired
func (um *UserManager) ValidateToken(token string) (string, error) {
	um.mu.RLock()
	session, exists := um.sessions[token]
	um.mu.RUnlock()

	if !exists {
		return "", errors.New("invalid token")
	}

	if time.Now().After(session.ExpiresAt) {
		um.mu.Lock()
		delete(um.sessions, token)
		um.mu.Unlock()
		return "", errors.New("session expired")
	}

	return session.Username, nil
}

// Logout removes a session token
func (um *UserManager) Logout(token string) {
	um.mu.Lock()
	defer um.mu.Unlock()
	delete(um.sessions, token)
}

// cleanupExpiredSessions removes expired sessions periodically
func (um *UserManager) cleanupExpiredSessions() {
	um.mu.Lock()
	defer um.mu.Unlock()

	now := time.Now()
	for token, session := range um.sessions {
		if now.After(session.ExpiresAt) {
			delete(um.sessions, token)
		}
	}
}

// ChangePassword updates the user's password after verifying the old password
func (um *UserManager) ChangePassword(username, oldPassword, newPassword string) error {
	um.mu.Lock()
	defer um.mu.Unlock()
	u, ok := um.users[username]
	if !ok {
		return errors.New("user not found")
	}
	if err := comparePassword(u.PasswordHash, oldPassword); err != nil {
		return errors.New("invalid current password")
	}
	if len(newPassword) < 6 {
		return errors.New("new password must be at least 6 characters")
	}
	hashed, err := bcryptHash(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hashed
	um.saveUsersLocked()
	return nil
}

func (um *UserManager) Load() {
	um.mu.Lock()
	defer um.mu.Unlock()

	file, err := os.Open(um.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Error opening users file: %v", err)
		}
		return
	}
	defer file.Close()

	var loadedUsers map[string]*User
	if err := json.NewDecoder(file).Decode(&loadedUsers); err != nil {
		log.Printf("Error decoding users: %v", err)
		return
	}

	um.users = loadedUsers
	log.Printf("Loaded %d users from disk", len(um.users))
}

func (um *UserManager) saveUsersLocked() {
	if err := os.MkdirAll(filepath.Dir(um.filePath), 0755); err != nil {
		log.Printf("Error creating data directory: %v", err)
		return
	}
	file, err := os.Create(um.filePath)
	if err != nil {
		log.Printf("Error saving users: %v", err)
		return
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(um.users); err != nil {
		log.Printf("Error encoding users: %v", err)
	}
}
