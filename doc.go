// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package nxcp is a client for the NetXMS client protocol (NXCP).
//
// A Session owns one TCP connection to a management server. It performs
// the server info handshake and login, runs a background receiver that
// correlates replies with requests, keeps local caches of objects and the
// user database, and fans push notifications out to listeners.
//
// # Quick Start
//
//	session, err := nxcp.NewSession(
//	    "nms.example.com",
//	    nxcp.Login("admin"),
//	    nxcp.Password("secret"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	ctx := context.Background()
//	if err := session.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := session.SyncObjects(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	for _, obj := range session.TopLevelObjects() {
//	    fmt.Println(obj.ID, obj.Name, obj.Class)
//	}
//
// # Requests and Replies
//
// Every request carries a correlation id. The receiver hands the reply
// with the same id to the waiting caller. Replies that arrive before
// anyone waits for them are parked for CommandTimeout and then dropped.
// A per-request timeout overrides the session default:
//
//	alarms, err := session.GetAlarms(ctx, false, nxcp.Timeout(2*time.Minute))
//
// Server-side failures are returned as *RemoteError carrying the result
// code; all waits end with ErrTimeout or the context error.
//
// # Caches
//
// SyncObjects and SyncUserDatabase load a full snapshot. Push updates
// received afterwards keep the caches current. Lookups such as
// FindObjectByID never block on the network.
//
// # Notifications
//
// Listeners registered with AddListener receive object, alarm, job, user
// database, file and custom message events, plus NotifyConnectionBroken
// when the connection fails. Listeners run on the receiver goroutine and
// must return quickly; the amqpsink package forwards notifications to
// RabbitMQ without blocking.
//
// # Thread Safety
//
// A Session is safe for concurrent use. Connect and Disconnect are
// serialized; requests may be issued from many goroutines at once.
//
// # References
//
//   - NetXMS: https://www.netxms.org
//   - gjson: https://github.com/tidwall/gjson
//   - sjson: https://github.com/tidwall/sjson
package nxcp
