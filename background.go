package main

import (
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/service"
)

func GoBackgrounds(store *service.DraftStore, sessions *service.SessionRegistry, draftTTL time.Duration, sessionIdle time.Duration) {
	// sessions go first so that their drafts are cleared by their controllers
	go TickBackground(1*time.Minute, func(now time.Time) {
		sessions.Evict(sessionIdle)
	})()

	// remove drafts left behind by closed tabs or a previous process
	go TickBackground(5*time.Minute, func(now time.Time) {
		removed, err := store.Sweep(draftTTL)
		if err != nil {
			log.Warn("sweep drafts: %v", err)
			return
		}
		if removed > 0 {
			log.Info("removed %v stale registration drafts", removed)
		}
	})()

	// keep the dns cache of the outbound client fresh
	go TickBackground(5*time.Minute, func(now time.Time) {
		service.Resolver.Refresh(true)
	})()
}

func TickBackground(interval time.Duration, f func(now time.Time)) func() {
	return func() {
		tick := time.Tick(interval)
		for now := range tick {
			f(now)
		}
	}
}
