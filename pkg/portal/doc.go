// Package portal drives the SENATRAN toxicological-exam lookup page with
// go-rod. It implements the batch.Launcher, batch.Engine and batch.Session
// interfaces.
//
// One Engine is a single Chrome process. Every Session is a fresh incognito
// browser context with one page, so cookies and storage never leak between
// queries. Each page blocks images, fonts and ad/analytics hosts, overrides
// the user agent and Accept-Language, and installs a fingerprint patch
// before any page script runs.
//
// Usage:
//
//	l := portal.NewLauncher(portal.DefaultConfig())
//	orch := batch.New(l, batch.DefaultOptions())
package portal
