// Package device persists people-counter state for the Gray Logic counter bridge.
//
// Three record kinds are kept in SQLite:
//
//   - LiveState: one row per counter, replaced on every observed change
//   - HistoryRecord: append-only samples, tagged with the owning tenant
//   - CommStatus: whether a sensor unit is currently unreachable
//
// # Usage
//
//	live := device.NewSQLiteLiveStateRepository(db.DB)
//	history := device.NewSQLiteHistoryRepository(db.DB)
//	status := device.NewSQLiteStatusRepository(db.DB)
//
//	_ = live.Upsert(ctx, "people-counter-01", state, time.Now())
//	recent, _ := history.GetHistory(ctx, "people-counter-01", 50)
//
// # Thread Safety
//
// All repositories are stateless wrappers around *sql.DB and are safe for
// concurrent use.
//
// Related: migrations/20260301_090000_counter_state.up.sql
package device
