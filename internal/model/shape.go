package model

import "fmt"

// AddressShape 充值地址行的具体形态，只在持久化边界解码一次
type AddressShape interface {
	isAddressShape()
}

// IndexShape 由 HD index 派生的独立地址
type IndexShape struct {
	DerivationPath string
	Index          uint32
}

// TagShape 共享地址 + destination tag
type TagShape struct {
	Tag uint32
}

// ExternalShape 外部来源 (运营指定或远程分配) 且不带派生信息的地址
type ExternalShape struct{}

func (IndexShape) isAddressShape()    {}
func (TagShape) isAddressShape()      {}
func (ExternalShape) isAddressShape() {}

// Shape 解码行形态，字段组合不合法时返回错误而不是猜测
func (a *DepositAddress) Shape() (AddressShape, error) {
	hasTag := a.DestinationTag != nil
	hasIndex := a.AddressIndex != nil
	hasPath := a.DerivationPath != nil && *a.DerivationPath != ""

	switch {
	case hasTag && (hasIndex || hasPath):
		return nil, fmt.Errorf("地址行 %d 同时带有 tag 和派生路径", a.ID)
	case hasTag:
		return TagShape{Tag: *a.DestinationTag}, nil
	case hasIndex && hasPath:
		return IndexShape{DerivationPath: *a.DerivationPath, Index: *a.AddressIndex}, nil
	case hasIndex || hasPath:
		return nil, fmt.Errorf("地址行 %d 的派生信息不完整", a.ID)
	default:
		return ExternalShape{}, nil
	}
}

// WithShape 把形态写回行字段
func (a *DepositAddress) WithShape(shape AddressShape) {
	a.DerivationPath, a.AddressIndex, a.DestinationTag = nil, nil, nil
	switch s := shape.(type) {
	case IndexShape:
		path, index := s.DerivationPath, s.Index
		a.DerivationPath, a.AddressIndex = &path, &index
	case TagShape:
		tag := s.Tag
		a.DestinationTag = &tag
	case ExternalShape:
	}
}

// InsertOutcome 充值地址 "不存在才插入" 的结果
type InsertOutcome int

const (
	Inserted        InsertOutcome = iota
	KeyConflict                   // 该用户该组合已有有效地址
	AddressConflict               // 地址 (或 地址+tag) 已被占用
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case KeyConflict:
		return "key_conflict"
	case AddressConflict:
		return "address_conflict"
	default:
		return "unknown"
	}
}
