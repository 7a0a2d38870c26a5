package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	pinsIssued         atomic.Int64
	tokensIssued       atomic.Int64
	redemptionsGranted atomic.Int64
	redemptionsDenied  atomic.Int64
	grantsRevoked      atomic.Int64
	ledgerEntries      atomic.Int64
)

func IncPinsIssued()         { pinsIssued.Add(1) }
func IncTokensIssued()       { tokensIssued.Add(1) }
func IncRedemptionsGranted() { redemptionsGranted.Add(1) }
func IncRedemptionsDenied()  { redemptionsDenied.Add(1) }
func IncGrantsRevoked()      { grantsRevoked.Add(1) }

func AddGrantsRevoked(n int) { grantsRevoked.Add(int64(n)) }

// ObserveLedgerSize records the current ledger length, sampled on
// append rather than scraped.
func ObserveLedgerSize(n int) { ledgerEntries.Store(int64(n)) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP ehealthwave_access_pins_issued_total Number of emergency PINs issued since start.\n")
	fmt.Fprintf(w, "# TYPE ehealthwave_access_pins_issued_total counter\n")
	fmt.Fprintf(w, "ehealthwave_access_pins_issued_total %d\n", pinsIssued.Load())

	fmt.Fprintf(w, "# HELP ehealthwave_access_tokens_issued_total Number of sharing tokens issued since start.\n")
	fmt.Fprintf(w, "# TYPE ehealthwave_access_tokens_issued_total counter\n")
	fmt.Fprintf(w, "ehealthwave_access_tokens_issued_total %d\n", tokensIssued.Load())

	fmt.Fprintf(w, "# HELP ehealthwave_access_redemptions_granted_total Number of emergency PIN redemptions that granted access.\n")
	fmt.Fprintf(w, "# TYPE ehealthwave_access_redemptions_granted_total counter\n")
	fmt.Fprintf(w, "ehealthwave_access_redemptions_granted_total %d\n", redemptionsGranted.Load())

	fmt.Fprintf(w, "# HELP ehealthwave_access_redemptions_denied_total Number of emergency PIN redemptions that were denied.\n")
	fmt.Fprintf(w, "# TYPE ehealthwave_access_redemptions_denied_total counter\n")
	fmt.Fprintf(w, "ehealthwave_access_redemptions_denied_total %d\n", redemptionsDenied.Load())

	fmt.Fprintf(w, "# HELP ehealthwave_access_grants_revoked_total Number of grants revoked.\n")
	fmt.Fprintf(w, "# TYPE ehealthwave_access_grants_revoked_total counter\n")
	fmt.Fprintf(w, "ehealthwave_access_grants_revoked_total %d\n", grantsRevoked.Load())

	fmt.Fprintf(w, "# HELP ehealthwave_audit_ledger_entries Number of entries in the audit ledger.\n")
	fmt.Fprintf(w, "# TYPE ehealthwave_audit_ledger_entries gauge\n")
	fmt.Fprintf(w, "ehealthwave_audit_ledger_entries %d\n", ledgerEntries.Load())
}
