package model

// Mode records which path produced a session.
type Mode string

const (
	// ModeLive sessions were issued by the real credential authority.
	ModeLive Mode = "live"
	// ModeDemo sessions were synthesized locally without the backend.
	ModeDemo Mode = "demo"
)

// Session is the client's view of who is logged in.
//
// UserID, Email and Role have the same shape in both modes, so consumers
// never need to branch on Mode to read them. AccessToken is empty for demo
// sessions.
type Session struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	AccessToken string `json:"accessToken,omitempty"`
	Mode        Mode   `json:"mode"`
}

// IsDemo reports whether the session was synthesized locally.
func (s *Session) IsDemo() bool {
	return s.Mode == ModeDemo
}
