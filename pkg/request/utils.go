package request

import (
	"fmt"
	"maps"
	"net/url"
	"reflect"

	"github.com/spf13/cast"
)

// ToFormBody converts a JSON like map to form body map, any type is mapped to string.
func ToFormBody(in map[string]any) (out map[string]string) {
	out = make(map[string]string)
	for k, v := range in {
		ty := reflect.TypeOf(v)
		if ty.Kind() == reflect.Slice {
			for i, s := range v.([]string) {
				out[fmt.Sprintf("%s[%d]", k, i)] = s
			}
		} else if ty.Kind() == reflect.Map && ty.Elem().Kind() == reflect.String {
			for i, s := range v.(map[string]string) {
				out[fmt.Sprintf("%s[%s]", k, i)] = s
			}
		} else {
			out[k] = castToString(v)
		}
	}
	return out
}

func cloneParams(in map[string]string) (out map[string]string) {
	out = make(map[string]string)
	maps.Copy(out, in)
	return out
}

func cloneURLValues(in url.Values) (out url.Values) {
	out = make(url.Values)
	for k, values := range in {
		for _, v := range values {
			out.Add(k, v)
		}
	}
	return out
}

func castToString(v any) string {
	if v, err := cast.ToStringE(v); err != nil {
		panic(fmt.Errorf(`cannot cast %T to string %w`, v, err))
	} else {
		return v
	}
}
