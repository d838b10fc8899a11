package config

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Retailer is a Vietnamese phone retailer whose pages count as web search hits.
type Retailer struct {
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

type retailersFile struct {
	Replace   bool       `yaml:"replace"`
	Retailers []Retailer `yaml:"retailers"`
}

// DefaultRetailers lists the domains web search results are restricted to.
func DefaultRetailers() []Retailer {
	return []Retailer{
		{Domain: "thegioididong.com", Name: "Thế Giới Di Động"},
		{Domain: "fptshop.com.vn", Name: "FPT Shop"},
		{Domain: "cellphones.com.vn", Name: "CellphoneS"},
		{Domain: "tiki.vn", Name: "Tiki"},
		{Domain: "lazada.vn", Name: "Lazada"},
		{Domain: "shopee.vn", Name: "Shopee"},
		{Domain: "viettelstore.vn", Name: "Viettel Store"},
		{Domain: "hoanghamobile.com", Name: "Hoàng Hà Mobile"},
		{Domain: "nguyenkim.com", Name: "Nguyễn Kim"},
		{Domain: "sendo.vn", Name: "Sendo"},
		{Domain: "dienmayxanh.com", Name: "Điện Máy Xanh"},
		{Domain: "bachlong.vn", Name: "Bạch Long"},
		{Domain: "hangchinhhieu.vn", Name: "Hàng Chính Hiệu"},
		{Domain: "vienthonga.vn", Name: "Viễn Thông A"},
		{Domain: "phongvu.vn", Name: "Phong Vũ"},
		{Domain: "anphatpc.com.vn", Name: "An Phát"},
		{Domain: "hacom.vn", Name: "HACOM"},
		{Domain: "didongviet.vn", Name: "Di Động Việt"},
		{Domain: "hnam.com.vn", Name: "HnamMobile"},
	}
}

// LoadRetailers returns the default retailers overlaid with the entries of a YAML file.
// Entries with a known domain rename it; new domains are appended. With
// "replace: true" the file's list is used as is. An empty path returns the defaults.
func LoadRetailers(path string) ([]Retailer, error) {
	retailers := DefaultRetailers()
	if path == "" {
		return retailers, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file retailersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.Replace {
		retailers = nil
	}

	index := make(map[string]int, len(retailers))
	for i, r := range retailers {
		index[r.Domain] = i
	}
	for _, r := range file.Retailers {
		r.Domain = strings.ToLower(strings.TrimSpace(r.Domain))
		if r.Domain == "" {
			return nil, errors.New("retailer entry without domain")
		}
		if r.Name == "" {
			r.Name = r.Domain
		}
		if i, ok := index[r.Domain]; ok {
			retailers[i] = r
			continue
		}
		index[r.Domain] = len(retailers)
		retailers = append(retailers, r)
	}

	if len(retailers) == 0 {
		return nil, errors.New("no retailers configured")
	}
	return retailers, nil
}
