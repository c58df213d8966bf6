// Package poller is the readiness multiplexer behind hapt's event loop.
//
// It pairs a Linux epoll set with a descriptor table whose entries are
// tagged by Kind, so the loop can dispatch each ready descriptor without
// guessing what it is:
//
//	KindControl   radio control socket (carries the radio name and client)
//	KindDiscovery inotify descriptor of the resource watcher
//	KindWakeup    internal eventfd used by Interrupt
//
// Wait is the loop's only blocking point. Interrupt writes the eventfd so a
// signal handler goroutine can unblock Wait, which then returns
// ErrInterrupted instead of a readiness result.
package poller
