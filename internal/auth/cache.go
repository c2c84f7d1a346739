package auth

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/contacts-api/internal/repository"
)

// snapshotTTL bounds how long a cached user may be served without a
// database lookup.  Entries are only replaced by overwrite or expiry.
const snapshotTTL = 300 * time.Second

const snapshotKeyPrefix = "user_snapshot:"

// UserSnapshot is the serializable view of a user stored in the session
// cache.  It is a plain data record created deliberately at the cache
// boundary, so the cache payload does not track the storage schema.
type UserSnapshot struct {
	ID        uint64 `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar,omitempty"`
	Role      string `json:"role"`
	Confirmed bool   `json:"confirmed"`
}

// SnapshotFromUser builds the cacheable view of a user row.
func SnapshotFromUser(u repository.User) UserSnapshot {
	return UserSnapshot{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Avatar:    u.Avatar.String,
		Role:      u.Role,
		Confirmed: u.Confirmed,
	}
}

// UserCache stores user snapshots in Redis keyed by user id.  A nil Redis
// client disables the cache: every Get misses and every Set is a no-op, so
// authentication falls through to the database.
type UserCache struct {
	rdb *redis.Client
}

func NewUserCache(rdb *redis.Client) *UserCache { return &UserCache{rdb: rdb} }

func snapshotKey(userID uint64) string {
	return snapshotKeyPrefix + strconv.FormatUint(userID, 10)
}

// Get returns the cached snapshot for a user id.  Cache errors are treated
// as misses; the caller falls back to the user directory.
func (c *UserCache) Get(ctx context.Context, userID uint64) (UserSnapshot, bool) {
	if c == nil || c.rdb == nil {
		return UserSnapshot{}, false
	}
	raw, err := c.rdb.Get(ctx, snapshotKey(userID)).Bytes()
	if err != nil {
		return UserSnapshot{}, false
	}
	var snap UserSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return UserSnapshot{}, false
	}
	return snap, true
}

// Set stores a snapshot with the fixed expiry.  Failures are swallowed;
// the cache is an optimization, never a source of truth.
func (c *UserCache) Set(ctx context.Context, snap UserSnapshot) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, snapshotKey(snap.ID), raw, snapshotTTL).Err()
}
