// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the interactive terminal chat.
//
// Parse turns os.Args into a Command and Args:
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdServe:
//	    // start the HTTP UI
//	case cli.CmdChat:
//	    return cli.RunChat(ctx, cfg, factory, args)
//	}
//
// The chat REPL reads lines with peterh/liner (history is kept in the config
// directory), runs each message through the same orchestrator the browser UI
// uses, and prints the cumulative reply as it grows. When stdout is a
// terminal the finished reply is rendered as markdown with glamour instead.
//
// Slash commands adjust the session in place; see /help.
package cli
