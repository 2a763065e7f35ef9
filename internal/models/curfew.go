package models

import "time"

// CurfewJobStatus tracks a curfew job through its lifecycle
type CurfewJobStatus string

const (
	CurfewJobPending   CurfewJobStatus = "pending"
	CurfewJobDone      CurfewJobStatus = "done"
	CurfewJobFailed    CurfewJobStatus = "failed"
	CurfewJobCancelled CurfewJobStatus = "cancelled"
)

// CurfewRule is what the user arms: check a contact against a home anchor
// at a deadline.
type CurfewRule struct {
	ContactPairingCode string    `json:"contact_pairing_code"`
	ContactDisplayName string    `json:"contact_display_name"`
	Deadline           time.Time `json:"deadline"`
	HomeAnchor         Position  `json:"home_anchor"`
}

// CurfewJob is the durable form of an armed curfew rule. The payload is
// self-contained so the evaluation can run after the process that armed it
// has restarted.
type CurfewJob struct {
	ID          int64           `json:"id" db:"id"`
	OwnerKey    string          `json:"owner_key" db:"owner_key"`
	PairingCode string          `json:"pairing_code" db:"pairing_code"`
	DisplayName string          `json:"display_name" db:"display_name"`
	Deadline    time.Time       `json:"deadline" db:"deadline"`
	HomeLat     float64         `json:"home_lat" db:"home_lat"`
	HomeLon     float64         `json:"home_lon" db:"home_lon"`
	Status      CurfewJobStatus `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// IsDue returns true if the job should be evaluated now
func (j *CurfewJob) IsDue() bool {
	if j.Status != CurfewJobPending {
		return false
	}
	return !time.Now().Before(j.Deadline)
}

// HomeAnchor returns the job's home anchor as a Position
func (j *CurfewJob) HomeAnchor() Position {
	return Position{Latitude: j.HomeLat, Longitude: j.HomeLon}
}

// CurfewOutcome is the result of one evaluation, produced for the
// notification sink and then discarded.
type CurfewOutcome struct {
	ContactDisplayName string    `json:"contact_display_name"`
	DistanceMeters     float64   `json:"distance_meters"`
	WithinBounds       bool      `json:"within_bounds"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}
