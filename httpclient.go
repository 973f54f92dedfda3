package main

import (
	"net/http"
	"time"
)

// Classification-style calls are short; generation calls get more room.
const (
	connectHTTPTimeout  = 5 * time.Second
	generateHTTPTimeout = 30 * time.Second
)

var connectHTTPClient = &http.Client{
	Timeout: connectHTTPTimeout,
}

var generateHTTPClient = &http.Client{
	Timeout: generateHTTPTimeout,
}
