package storage

import "errors"

// ErrNotFound 由各儲存實作在找不到指定資料時回傳
var ErrNotFound = errors.New("找不到指定的資料")
