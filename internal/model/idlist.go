package model

import (
    "database/sql/driver"
    "fmt"
    "strings"
)

// IDList 以 ",a,b," 形式存成一列文本，可直接用 LIKE '%,id,%' 判定成员；
// 空列表存为空串。sqlite / postgres 通用。
type IDList []string

func (l IDList) Value() (driver.Value, error) {
    if len(l) == 0 {
        return "", nil
    }
    return "," + strings.Join(l, ",") + ",", nil
}

func (l *IDList) Scan(src any) error {
    var s string
    switch v := src.(type) {
    case nil:
        *l = nil
        return nil
    case string:
        s = v
    case []byte:
        s = string(v)
    default:
        return fmt.Errorf("IDList: unsupported scan type %T", src)
    }
    s = strings.Trim(s, ",")
    if s == "" {
        *l = nil
        return nil
    }
    *l = strings.Split(s, ",")
    return nil
}

// Contains 成员判断
func (l IDList) Contains(id string) bool {
    for _, x := range l {
        if x == id {
            return true
        }
    }
    return false
}
