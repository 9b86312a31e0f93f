package auth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/aisleco/aisle-open/cmd/cli/internal/config"
)

// AuthError represents an auth-specific error that should not show usage help
type AuthError struct {
	message string
}

func (e AuthError) Error() string {
	return "❌ Error: " + e.message
}

// Login authenticates against the cluster and stores the session token
// in the keyring. Empty username or password are prompted for.
func Login(username, password string) error {
	reader := bufio.NewReader(os.Stdin)

	if username == "" {
		fmt.Print("Username: ")
		username, _ = reader.ReadString('\n')
		username = strings.TrimSpace(username)
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	if password == "" {
		fmt.Print("Password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %v", err)
		}
		password = string(passwordBytes)
		fmt.Println()
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	c, err := config.NewClient()
	if err != nil {
		return err
	}

	if err := c.Login(context.Background(), username, password); err != nil {
		return AuthError{message: fmt.Sprintf("login failed: %v", err)}
	}

	if err := config.StoreUsername(username); err != nil {
		return fmt.Errorf("failed to store username: %v", err)
	}
	if err := config.StoreToken(username, c.Token()); err != nil {
		return fmt.Errorf("failed to store token: %v", err)
	}

	fmt.Printf("✅ Logged in as %s\n", username)
	return nil
}

// Logout revokes the session on the cluster and clears local credentials.
// Local credentials are cleared even when the cluster is unreachable.
func Logout() error {
	username, err := config.GetUsername()
	if err != nil {
		return AuthError{message: "no user is currently logged in"}
	}

	c, err := config.NewClient()
	if err == nil && c.Token() != "" {
		if err := c.Logout(context.Background()); err != nil {
			fmt.Printf("⚠️  Could not revoke token on the cluster: %v\n", err)
		}
	}

	if err := config.ClearCredentials(username); err != nil {
		return AuthError{message: fmt.Sprintf("failed to clear credentials: %v", err)}
	}

	fmt.Printf("✅ Successfully logged out %s\n", username)
	return nil
}

// JWTClaims represents the standard JWT claims
type JWTClaims struct {
	Exp      int64  `json:"exp"`
	Iat      int64  `json:"iat"`
	Sub      string `json:"sub"`
	Username string `json:"username"`
}

// parseJWTToken extracts the claims from a JWT without verifying it;
// the CLI only needs the expiry for display.
func parseJWTToken(token string) (*JWTClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT token format")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT payload: %v", err)
	}

	var claims JWTClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, fmt.Errorf("failed to parse JWT claims: %v", err)
	}

	return &claims, nil
}

// Status shows the current authentication status
func Status() error {
	username, err := config.GetUsername()
	if err != nil {
		fmt.Println("Authentication Status: Not logged in")
		fmt.Println("No user credentials found in keyring")
		return nil
	}

	token, err := config.GetToken(username)
	if err != nil {
		fmt.Println("Authentication Status: Not logged in")
		fmt.Printf("Username found: %s\n", username)
		fmt.Println("Session token not found in keyring")
		return nil
	}

	var expiry string
	var expiryTime time.Time
	if claims, parseErr := parseJWTToken(token); parseErr == nil {
		expiryTime = time.Unix(claims.Exp, 0)
		expiry = expiryTime.Format("2006-01-02 15:04:05 MST")
	} else {
		expiry = "Unable to parse"
	}
	expired := !expiryTime.IsZero() && expiryTime.Before(time.Now())

	fmt.Println("Authentication Status: Logged in")
	fmt.Println("----------------------------------------")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Username:\t%s\n", username)

	tokenStatus := "Valid"
	if expired {
		tokenStatus = "EXPIRED"
	}
	fmt.Fprintf(w, "Session Token:\t%s\n", tokenStatus)
	fmt.Fprintf(w, "Token Expires:\t%s\n", expiry)
	_ = w.Flush()

	if expired {
		fmt.Println("\n⚠️  Warning: Session token has expired. You need to login again.")
	}
	return nil
}
