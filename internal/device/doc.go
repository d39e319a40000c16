// Package device provides the device registry for lanwake.
//
// The registry is the ordered catalogue of machines the user can wake and
// monitor. It is the source of truth for what devices exist; the monitor
// scheduler watches it and starts or retires one polling loop per device.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────┐
//	│                      Device Registry                        │
//	│                                                             │
//	│  ┌──────────────────┐    ┌──────────────────────────────┐  │
//	│  │     Registry     │    │            Store             │  │
//	│  │  (registry.go)   │───▶│ SQLiteStore (sqlite_store.go)│  │
//	│  │                  │    │ FileStore   (file_store.go)  │  │
//	│  │ • ordered list   │    └──────────────────────────────┘  │
//	│  │ • Watch/OnRemove │                                      │
//	│  └──────────────────┘                                      │
//	└─────────│──────────────────────────────────────────────────┘
//	          ▼
//	  monitor.Scheduler, api, waker
//
// # Guarantees
//
//   - Keys are UUIDs and are never reused within a process, even after removal.
//   - List always reflects the latest committed state and never a partial one.
//   - OnRemove hooks run before Remove returns.
//   - A failed save is reported (ErrPersist) but does not roll back the
//     in-memory change.
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//	if err := reg.Load(ctx, device.NewSQLiteStore(db.DB)); err != nil {
//	    return err
//	}
//
//	key, err := reg.Add(ctx, "Workstation", mac, endpoints, nil)
package device
