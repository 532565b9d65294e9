package version

import version2 "github.com/hashicorp/go-version"

// NatsVersion is the mandatory minimum version of NATS that is supported by GRCFlow
var NatsVersion, _ = version2.NewVersion("v2.10.12")

// Version is the semantic version of the server.  It is overridden at build time.
var Version = "0.0.0-dev"

// MinCompatibleVersion is the oldest client library version the server will serve.
var MinCompatibleVersion, _ = version2.NewVersion("0.0.0")
