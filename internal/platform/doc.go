// File: internal/platform/doc.go
// Package platform
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Narrow OS abstraction for the wire core: close-on-exec socket creation,
// descriptor duplication, and scatter/gather send/receive carrying
// SCM_RIGHTS ancillary data. Implementations are strictly separated by build
// tags; unsupported platforms get stubs returning api.ErrNotSupported.

package platform
