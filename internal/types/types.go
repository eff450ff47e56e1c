// Package types defines the engine's persisted domain entities (spec.md
// §3.2). Every value here is passed through internal/codec before it
// touches a region and is never mutated in place once it leaves a
// collection module's API.
package types

import (
	"time"

	"github.com/coldkeep/vaultengine/internal/principal"
)

// VaultStatus is one state in the lifecycle state machine (spec.md
// §4.1). The Lifecycle Coordinator is the only writer of this field.
type VaultStatus string

const (
	StatusDraft        VaultStatus = "DRAFT"
	StatusNeedSetup     VaultStatus = "NEED_SETUP"
	StatusSetupComplete VaultStatus = "SETUP_COMPLETE"
	StatusActive        VaultStatus = "ACTIVE"
	StatusGraceMaster   VaultStatus = "GRACE_MASTER"
	StatusGraceHeir     VaultStatus = "GRACE_HEIR"
	StatusUnlockable    VaultStatus = "UNLOCKABLE"
	StatusExpired       VaultStatus = "EXPIRED"
	StatusDeleted       VaultStatus = "DELETED"
)

// PlanTier names a subscription tier; higher tiers imply a larger quota.
type PlanTier string

const (
	PlanStarter  PlanTier = "starter"
	PlanFamily   PlanTier = "family"
	PlanLegacy   PlanTier = "legacy"
	PlanEstate   PlanTier = "estate"
)

// VaultConfig is the root entity of a vault (spec.md §3.2). Its primary
// map key is VaultID itself.
type VaultConfig struct {
	VaultID              principal.Principal
	Owner                principal.Principal
	Plan                 PlanTier
	Status               VaultStatus
	StorageQuotaBytes    int64
	BytesUsed            int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ExpiresAt            time.Time
	UnlockAt             time.Time // zero if time-unlock not configured
	InactivityDays       uint32
	HeirThreshold        uint32
	WitnessThreshold     uint32
	LastAccessedByOwner  time.Time
	GraceMasterEnteredAt time.Time
	GraceHeirEnteredAt   time.Time
	UnlockedAt           time.Time
}

// Role names a VaultMember's role. Shamir share indices are unique per
// (vault, role), not globally.
type Role string

const (
	RoleHeir    Role = "heir"
	RoleWitness Role = "witness"
)

// MemberStatus is the lifecycle state of a VaultMember.
type MemberStatus string

const (
	MemberPending  MemberStatus = "pending"
	MemberActive   MemberStatus = "active"
	MemberVerified MemberStatus = "verified"
	MemberRevoked  MemberStatus = "revoked"
)

// VaultMember is keyed by the composite (VaultID, MemberPrincipal).
type VaultMember struct {
	VaultID     principal.Principal
	Member      principal.Principal
	Role        Role
	Status      MemberStatus
	ShamirIndex uint8
	ClaimedAt   time.Time
}

// InviteStatus is the lifecycle state of an InviteToken.
type InviteStatus string

const (
	InvitePending InviteStatus = "pending"
	InviteClaimed InviteStatus = "claimed"
	InviteRevoked InviteStatus = "revoked"
	InviteExpired InviteStatus = "expired"
)

// InviteToken is keyed internally by a monotonic uint64; its external
// identity is a Principal resolved through the invite secondary index.
type InviteToken struct {
	InternalID  uint64
	ExternalID  principal.Principal
	VaultID     principal.Principal
	Role        Role
	Status      InviteStatus
	ShamirIndex uint8
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ClaimedAt   time.Time
	ClaimedBy   principal.Principal
}

// ContentKind names the kind of content a ContentItem holds.
type ContentKind string

const (
	ContentFile     ContentKind = "file"
	ContentPassword ContentKind = "password"
	ContentLetter   ContentKind = "letter"
)

// ContentItem is keyed internally by a monotonic uint64; its external
// identity is a Principal resolved through the content secondary index.
// Payload is an opaque ciphertext blob produced by the client; the
// engine never interprets its bytes.
type ContentItem struct {
	InternalID uint64
	ExternalID principal.Principal
	VaultID    principal.Principal
	Kind       ContentKind
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Payload    []byte
}

// ContentIndex is the ordered sequence of external content IDs defining
// listing order for one vault (spec.md §3.2), keyed by VaultID.
type ContentIndex struct {
	VaultID principal.Principal
	Order   []principal.Principal
}

// UploadStatus is the lifecycle state of an UploadSession (spec.md
// §4.4).
type UploadStatus string

const (
	UploadOpen       UploadStatus = "open"
	UploadFinalizing UploadStatus = "finalizing"
	UploadCommitted  UploadStatus = "committed"
	UploadAborted    UploadStatus = "aborted"
)

// MaxChunkBytes is the largest single chunk upload_chunk accepts
// (spec.md §4.4).
const MaxChunkBytes = 524288

// UploadSession is keyed internally by a monotonic uint64; its external
// identity is a Principal resolved through the uploads secondary index.
// Initiator is persisted so a later upload_chunk call can reject any
// caller other than the session's own initiator (spec.md §9 Open
// Questions).
type UploadSession struct {
	InternalID      uint64
	ExternalID      principal.Principal
	VaultID         principal.Principal
	Initiator       principal.Principal
	Kind            ContentKind
	Filename        string
	MimeType        string
	DeclaredSize    int64
	ChunkCount      uint32
	ReceivedChunks  map[uint32]bool
	Status          UploadStatus
	CreatedAt       time.Time
}

// UploadChunk is keyed by the composite (InternalUploadID, ChunkIndex).
type UploadChunk struct {
	InternalUploadID uint64
	ChunkIndex       uint32
	Data             []byte
}

// AuditEntry is one record in a vault's audit vector (spec.md §3.2,
// §4.6).
type AuditEntry struct {
	Action    string
	Actor     principal.Principal
	Timestamp time.Time
	VaultID   principal.Principal
}

// AuditVector is the full heterogeneous sequence stored under one
// vault's audit key.
type AuditVector struct {
	VaultID principal.Principal
	Entries []AuditEntry
}

// BillingTxType names the kind of ledger transaction a BillingEntry
// records.
type BillingTxType string

const (
	BillingInitialVaultCreation BillingTxType = "InitialVaultCreation"
	BillingPlanUpgrade          BillingTxType = "PlanUpgrade"
)

// BillingEntry is an append-only record (spec.md §3.2, §3.4); it is
// never mutated once appended.
type BillingEntry struct {
	Timestamp        time.Time
	VaultID          principal.Principal
	TxType           BillingTxType
	AmountBaseUnits   uint64
	LedgerTxHash     string
	RelatedPrincipal principal.Principal
}

// Approvals tracks per-vault quorum progress (spec.md §3.2, §4.8),
// keyed by VaultID.
type Approvals struct {
	VaultID   principal.Principal
	Heirs     uint32
	Witnesses uint32
}

// Metrics is the global singleton metrics cell (spec.md §3.2, §4.8).
type Metrics struct {
	TotalVaults      uint64
	ActiveVaults     uint64
	UnlockedVaults   uint64
	NeedSetupVaults  uint64
	ExpiredVaults    uint64
	StorageUsedBytes uint64
	InvitesToday     uint64
	InvitesClaimed   uint64
	SchedulerLastRun time.Time
}

// GlobalConfig is the engine-wide configuration set exactly once by
// init_config (spec.md §4.9).
type GlobalConfig struct {
	Admin               principal.Principal
	Scheduler           principal.Principal
	MinResourceThreshold uint64
	InitializedAt        time.Time
}

// Cursor is the generic monotone pagination counter (spec.md §3.2,
// §4.9).
type Cursor struct {
	Value uint64
}
