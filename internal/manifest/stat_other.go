//go:build !unix

package manifest

import "os"

func sysStat(os.FileInfo) (statInfo, bool) {
	return statInfo{}, false
}
