//go:build windows

package storage

import "golang.org/x/sys/windows"

func availableBytes(path string) (int64, error) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return -1, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &free, &total, &totalFree); err != nil {
		return -1, err
	}
	return int64(free), nil
}
