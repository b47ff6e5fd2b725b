//go:build unix

package manifest

import (
	"os"
	"syscall"
)

func sysStat(fi os.FileInfo) (statInfo, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return statInfo{}, false
	}
	return statInfo{
		mode:   uint32(st.Mode),
		uid:    st.Uid,
		gid:    st.Gid,
		size:   st.Size,
		dev:    uint64(st.Dev), //nolint:unconvert // int32 on darwin
		hasDev: true,
	}, true
}
