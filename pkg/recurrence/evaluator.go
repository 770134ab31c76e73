package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Evaluator 给定规则、系列锚点与窗口，返回窗口内全部发生时刻
// 窗口两端均包含；结果升序且去重；规则非法时返回 *RuleParseError
type Evaluator interface {
	Evaluate(rule string, anchor, from, to time.Time) ([]time.Time, error)
}

// RuleParseError 规则无法解析
// 与"窗口内零次发生"区分：后者返回空切片和 nil
type RuleParseError struct {
	Rule string
	Err  error
}

func (e *RuleParseError) Error() string {
	return fmt.Sprintf("无法解析重复规则 %q: %v", e.Rule, e.Err)
}

func (e *RuleParseError) Unwrap() error { return e.Err }

// RRuleEvaluator 基于 teambition/rrule-go 的 RFC 5545 实现
type RRuleEvaluator struct{}

// NewRRuleEvaluator 创建规则求值器
func NewRRuleEvaluator() *RRuleEvaluator {
	return &RRuleEvaluator{}
}

// Evaluate 以 anchor 作为 DTSTART 展开 rule
// 迭代在 anchor 所在时区进行，调用方需先把 anchor 转到日历时区
func (e *RRuleEvaluator) Evaluate(rule string, anchor, from, to time.Time) ([]time.Time, error) {
	opt, err := ParseRule(rule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = anchor

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, &RuleParseError{Rule: rule, Err: err}
	}

	if to.Before(from) {
		return []time.Time{}, nil
	}

	raw := r.Between(from, to, true)
	return normalize(raw), nil
}

// ParseRule 解析规则字符串，允许带 "RRULE:" 前缀
// 规则中自带的 DTSTART 会被锚点覆盖
func ParseRule(rule string) (*rrule.ROption, error) {
	s := strings.TrimSpace(rule)
	if s == "" {
		return nil, &RuleParseError{Rule: rule, Err: fmt.Errorf("规则为空")}
	}
	if len(s) > 6 && strings.EqualFold(s[:6], "RRULE:") {
		s = s[6:]
	}

	opt, err := rrule.StrToROption(s)
	if err != nil {
		return nil, &RuleParseError{Rule: rule, Err: err}
	}
	return opt, nil
}

// Validate 只检查规则能否解析
func Validate(rule string) error {
	_, err := ParseRule(rule)
	return err
}

func normalize(raw []time.Time) []time.Time {
	out := make([]time.Time, 0, len(raw))
	out = append(out, raw...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })

	dedup := out[:0]
	for i, t := range out {
		if i > 0 && t.Equal(dedup[len(dedup)-1]) {
			continue
		}
		dedup = append(dedup, t)
	}
	return dedup
}
