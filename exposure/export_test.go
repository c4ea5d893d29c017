package exposure

var ReadAndClose = readAndClose
