// Package monitor keeps every device's reachability status current.
//
// The Scheduler runs one polling loop per registered device. It watches the
// device registry: new devices get a loop, removed devices have theirs
// cancelled before Registry.Remove returns. Each loop probes the device's
// endpoints, publishes the result, and sleeps for the configured interval
// plus a random jitter.
//
// Statuses are kept on a Board and every change is delivered to
// subscribers through a Broker. Each subscription has its own unbounded
// queue, so a slow subscriber never blocks the scheduler or other
// subscribers. Changes for one device are delivered in the order they
// happened; there is no ordering promise across devices.
//
// Status rules:
//   - A device starts Unknown and stays Unknown while it has no endpoints.
//   - Checking is shown only for the first check; later checks keep the last
//     result visible until the new one arrives.
//   - Only actual changes are published.
//   - Nothing is published for a device after its removal.
package monitor
