package handler

import "encoding/json"

// Optional は部分更新のためのJSONフィールド。
// キーが無い、nullが指定された、値が指定された、の3状態を区別する。
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// UnmarshalJSON はキーが存在する場合にのみ呼ばれる。
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Ptr は値が指定されていればそのポインタを返す。
func (o Optional[T]) Ptr() *T {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}
