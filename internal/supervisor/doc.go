// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package supervisor provides process supervision for Marquee using suture v4.

# Overview

Long-running services are organized into two layers:

	RootSupervisor ("marquee")
	├── DataSupervisor ("data-layer")
	│   ├── badger-gc          (value-log GC)
	│   ├── duckdb-checkpoint  (if the exposure log is enabled)
	│   └── profile-cleanup    (if the profile cache is enabled)
	└── APISupervisor ("api-layer")
	    └── http-server

Crashed services restart with backoff. Failures are counted per layer, so
a maintenance task stuck in backoff never takes the HTTP server with it.

# Usage

	logger := logging.NewSlogLogger("supervisor")
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewCompactionService(store, 0.5, 10*time.Minute, log))
	tree.AddAPIService(services.NewHTTPService(server, addr, 10*time.Second, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

# Logging

Supervisor events (start, stop, failure, backoff) go through sutureslog to
an slog.Logger. logging.NewSlogLogger bridges that to zerolog so they share
the process log stream.
*/
package supervisor
