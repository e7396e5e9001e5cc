package repository

import (
	"fmt"
	"strings"
)

// updateBuilder は部分更新用のUPDATE文を組み立てる。
// カラム名は呼び出し側のリテラルのみを受け付け、値はすべてプレースホルダで渡す。
type updateBuilder struct {
	table string
	cols  []string
	args  []any
}

func newUpdateBuilder(table string) *updateBuilder {
	return &updateBuilder{table: table}
}

// set はカラムと値を追加する。
func (b *updateBuilder) set(col string, value any) {
	b.args = append(b.args, value)
	b.cols = append(b.cols, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

// empty は更新対象カラムがないかを返す。
func (b *updateBuilder) empty() bool {
	return len(b.cols) == 0
}

// build はid条件付きのUPDATE文と引数を返す。
func (b *updateBuilder) build(id string) (string, []any) {
	args := append(b.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		b.table, strings.Join(b.cols, ", "), len(args))
	return query, args
}
