// Package actor provides a supervised, mailbox-based actor runtime whose
// state survives restarts.
//
// A state type becomes an actor by implementing [Behavior]. Its Handle
// method is the message loop; it runs with exclusive access to the state and
// is called again whenever the supervisor restarts the execution slot:
//
//	type Counter struct{ N int }
//
//	func (c *Counter) Handle(hc *actor.Context) error {
//	    return actor.NewHandlers(
//	        actor.OnTell(func(hc *actor.Context, inc Inc) error {
//	            c.N += inc.By
//	            return nil
//	        }),
//	        actor.OnQuestion(func(hc *actor.Context, _ Get, q actor.Question) error {
//	            return q.Reply(c.N)
//	        }),
//	    ).Loop(hc)
//	}
//
// # Building
//
// [Builder] composes a nested [Supervisor] and a [Children] group under a
// parent supervisor:
//
//	root := actor.NewSupervisor(actor.SupervisorOptions{Context: ctx})
//	a, err := actor.NewBuilder[*Counter](root).
//	    WithState(&Counter{}).
//	    WithName("counter").
//	    Build()
//
// Types may declare default hooks by implementing [Configurer]. Builder
// overrides are merged on top, field by field.
//
// # State
//
// The [Actor] holds the strong [State] handle. The execution closure only
// captures a [WeakState] and upgrades it on every run, so a crashed and
// restarted run continues with the same state value. Upgrading after the
// owner released the state panics with a [StateGoneError]; the supervisor
// then stops the replica instead of restarting it. [WeakState.TryUpgrade]
// is the non-panicking variant.
//
// # Messaging
//
// Actors are addressed by name through a [Registry]:
//
//	_ = reg.Tell(ctx, "counter", Inc{By: 2})
//	n, err := actor.Ask[int](ctx, reg, "counter", Get{})
//
// A question that is never replied surfaces as the caller's context error.
package actor
