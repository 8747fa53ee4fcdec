// Package ws streams task runner events — progress fractions, log lines,
// elapsed-time ticks and terminal notifications — to UI clients over
// WebSocket.
package ws
