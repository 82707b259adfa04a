package vrs

import (
	"fmt"
	"io"

	"github.com/bramburn/gnssgo/pkg/obsstore"
)

// WriteRINEXObs writes one synthesized epoch as a RINEX 3 observation
// record (spec §4.7 step 5: "optional RINEX write"). This is a
// logging/archival side channel, not a header-managed RINEX file
// writer — no pack example repo ships a RINEX encoder (the pack's own
// `other_examples/*rinex*` files are readers), so the record shape
// below follows RINEX 3's plain epoch-line-plus-observation-lines
// layout without the surrounding file header machinery.
func WriteRINEXObs(w io.Writer, vstationID int, epoch *obsstore.Epoch) error {
	if epoch == nil {
		return nil
	}
	t := epoch.Time.UTC()
	if _, err := fmt.Fprintf(w, "> %04d %02d %02d %02d %02d %010.7f  0 %2d      vstation=%d\n",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), float64(t.Second())+float64(t.Nanosecond())/1e9,
		epoch.N, vstationID); err != nil {
		return err
	}
	for i := 0; i < epoch.N; i++ {
		o := epoch.Obs[i]
		if _, err := fmt.Fprintf(w, "G%02d", o.Sat); err != nil {
			return err
		}
		for f := range o.P {
			if o.P[f] == 0 && o.L[f] == 0 {
				continue
			}
			if _, err := fmt.Fprintf(w, " %14.3f %14.3f", o.P[f], o.L[f]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
