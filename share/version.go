package share

// BuildVersion represents a current build version. It can be overridden at link time.
var BuildVersion = SourceVersion
var SourceVersion = "0.0.0-src"
