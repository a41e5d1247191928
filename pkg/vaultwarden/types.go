package vaultwarden

// Status is the membership state reported by the organisation users API.
type Status int

const (
	StatusRevoked   Status = -1
	StatusInvited   Status = 0
	StatusAccepted  Status = 1
	StatusConfirmed Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusRevoked:
		return "revoked"
	case StatusInvited:
		return "invited"
	case StatusAccepted:
		return "accepted"
	case StatusConfirmed:
		return "confirmed"
	}
	return "unknown"
}

// Member is one organisation member.
type Member struct {
	ID     string // organisation-user id, target of revoke/restore
	UserID string // account id, used for self identification
	Email  string // lower-cased
	Status Status
	IsSelf bool // authenticated as this member's credentials
}

// Revoked reports whether the member currently has no access.
func (m Member) Revoked() bool {
	return m.Status == StatusRevoked
}
